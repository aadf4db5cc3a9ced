package app

import (
	"errors"
	"fmt"
	"strings"

	"sheetcrud/internal/crud"
	"sheetcrud/internal/probe"
	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
)

// ValidationError is a user-facing rejection of an action's input: upload
// limits, a missing confirmation or form fields that do not coerce.
type ValidationError struct {
	Message string
	Fields  crud.FieldErrors
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + e.Fields.Error()
}

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UserMessage converts err into the one message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	if errors.Is(err, probe.ErrSchemaDetection) {
		return "Could not detect a table in the uploaded file: " + detail(err, probe.ErrSchemaDetection)
	}

	var ce *schema.CoerceError
	var re *storage.RowError
	switch {
	case errors.Is(err, storage.ErrStoreUnavailable):
		return "The data store is unavailable. Try again later."
	case errors.Is(err, storage.ErrNoTable):
		return "Upload a spreadsheet first."
	case errors.Is(err, storage.ErrNotFound):
		return "That record no longer exists."
	case errors.Is(err, storage.ErrDuplicateKey):
		return "A record with that key already exists."
	case errors.Is(err, storage.ErrImmutableKey):
		return "The primary key of a record cannot be changed."
	case errors.Is(err, storage.ErrIncompatibleTable):
		return "The existing table does not match the uploaded data."
	case errors.Is(err, storage.ErrUnknownColumn):
		return "The submission contains an unknown column."
	case errors.As(err, &re) && errors.As(err, &ce):
		return fmt.Sprintf("Row %d: %q is not a valid %s for column %s.", re.Row, ce.Value, ce.Type, ce.Column)
	case errors.As(err, &ce):
		return fmt.Sprintf("%q is not a valid %s for column %s.", ce.Value, ce.Type, ce.Column)
	}
	return "Unexpected error: " + err.Error()
}

// detail strips the sentinel text from err's message.
func detail(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error())
	msg = strings.TrimLeft(msg, ": ")
	if msg == "" {
		return "no data"
	}
	return msg
}
