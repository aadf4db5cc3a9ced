package schema

import "fmt"

// CoerceError reports a single value that does not fit its column type.
type CoerceError struct {
	Column string
	Value  string
	Type   Type
	Err    error
}

func (e *CoerceError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("column %q (%s): %v", e.Column, e.Type, e.Err)
	}
	return fmt.Sprintf("column %q (%s): %q: %v", e.Column, e.Type, e.Value, e.Err)
}

func (e *CoerceError) Unwrap() error { return e.Err }
