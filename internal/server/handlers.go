package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"sheetcrud/internal/app"
	"sheetcrud/internal/crud"
	"sheetcrud/internal/probe"
	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st := crud.Interaction{
		Tab:         crud.ParseTab(q.Get("tab")),
		SelectedKey: q.Get("key"),
		Confirm:     q.Get("confirm") == "1",
		Notice:      q.Get("notice"),
	}
	s.render(w, r, st, http.StatusOK)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.session.Limits().MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+uploadOverhead)

	var up app.Upload
	err := r.ParseMultipartForm(32 << 20)
	if err == nil {
		file, header, ferr := r.FormFile("file")
		switch {
		case errors.Is(ferr, http.ErrMissingFile):
			err = &app.ValidationError{Message: "Choose a .xlsx or .xls file to upload."}
		case ferr != nil:
			err = ferr
		default:
			defer func() { _ = file.Close() }()
			up = app.Upload{Filename: header.Filename, Size: header.Size, Body: file}
		}
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		err = &app.ValidationError{Message: fmt.Sprintf("The file exceeds the %s upload limit.", humanize.IBytes(uint64(limit)))}
	case err != nil && !isValidation(err):
		err = &app.ValidationError{Message: "Could not read the upload: " + err.Error()}
	}
	if err != nil {
		s.fail(w, r, crud.Interaction{Tab: crud.TabView}, err)
		return
	}

	out, err := s.session.Upload(r.Context(), up)
	if err != nil {
		s.fail(w, r, crud.Interaction{Tab: crud.TabView}, err)
		return
	}
	redirect(w, r, crud.TabView, "", out.Notice)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	fields, err := formFields(r)
	if err != nil {
		s.fail(w, r, crud.Interaction{Tab: crud.TabCreate}, err)
		return
	}
	out, err := s.session.Create(r.Context(), fields)
	if err != nil {
		s.fail(w, r, crud.Interaction{Tab: crud.TabCreate, Pending: fields}, err)
		return
	}
	redirect(w, r, crud.TabView, "", out.Notice)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	fields, err := formFields(r)
	if err != nil {
		s.fail(w, r, crud.Interaction{Tab: crud.TabEdit, SelectedKey: key}, err)
		return
	}
	out, err := s.session.Update(r.Context(), key, fields)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.fail(w, r, crud.Interaction{Tab: crud.TabEdit}, err)
		return
	case err != nil:
		s.fail(w, r, crud.Interaction{Tab: crud.TabEdit, SelectedKey: key, Pending: fields}, err)
		return
	}
	redirect(w, r, crud.TabEdit, schema.FormatValue(out.Key), out.Notice)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, crud.Interaction{Tab: crud.TabDelete, SelectedKey: key}, err)
		return
	}
	confirmed := r.PostForm.Get("_confirm") == "yes"

	out, err := s.session.Delete(r.Context(), key, confirmed)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.fail(w, r, crud.Interaction{Tab: crud.TabDelete}, err)
		return
	case err != nil:
		s.fail(w, r, crud.Interaction{Tab: crud.TabDelete, SelectedKey: key, Confirm: true}, err)
		return
	}
	redirect(w, r, crud.TabView, "", out.Notice)
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Table     string `json:"table"`
	Loaded    bool   `json:"loaded"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, loaded := s.session.Schema()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Table:     s.session.Table(),
		Loaded:    loaded,
	})
}

type schemaColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Key  bool   `json:"key,omitempty"`
}

type schemaResponse struct {
	Table          string         `json:"table"`
	PrimaryKey     string         `json:"primary_key"`
	Synthesized    bool           `json:"synthesized"`
	DatePreference string         `json:"date_preference,omitempty"`
	Columns        []schemaColumn `json:"columns"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.session.Schema()
	if !ok {
		writeError(w, r, http.StatusNotFound, app.UserMessage(storage.ErrNoTable))
		return
	}
	resp := schemaResponse{
		Table:          s.session.Table(),
		PrimaryKey:     sc.PrimaryKey,
		Synthesized:    sc.Synthesized,
		DatePreference: string(sc.DatePreference),
		Columns:        make([]schemaColumn, 0, len(sc.Columns)),
	}
	for _, c := range sc.Columns {
		resp.Columns = append(resp.Columns, schemaColumn{Name: c, Type: sc.TypeOf(c).String(), Key: c == sc.PrimaryKey})
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail re-renders the page for st with err's user message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, st crud.Interaction, err error) {
	st.Error = app.UserMessage(err)
	var ve *app.ValidationError
	if errors.As(err, &ve) {
		st.FieldErrors = ve.Fields
	}
	s.render(w, r, st, statusFor(err))
}

// render builds the page from a fresh snapshot. The page is buffered so a
// template failure still yields a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, st crud.Interaction, status int) {
	out, err := s.session.Snapshot(r.Context())
	if err != nil {
		if st.Error == "" {
			st.Error = app.UserMessage(err)
		}
		if status < http.StatusBadRequest {
			status = statusFor(err)
		}
		out = app.Outcome{}
	}

	p := crud.BuildPage(out.Schema, out.Snapshot, st)
	p.UploadHint = s.session.Limits().Hint() + ". " + probe.HeaderHint
	if p.Error != "" && status == http.StatusOK && st.SelectedKey != "" {
		status = http.StatusNotFound
	}

	var buf bytes.Buffer
	if err := crud.Render(&buf, p); err != nil {
		s.logger.Printf("http: render: %v id=%s", err, RequestID(r.Context()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// redirect sends the browser back to the page after a successful action.
func redirect(w http.ResponseWriter, r *http.Request, tab crud.Tab, key, notice string) {
	q := url.Values{}
	q.Set("tab", string(tab))
	if key != "" {
		q.Set("key", key)
	}
	if notice != "" {
		q.Set("notice", notice)
	}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

// formFields returns the submitted column values. Control fields start
// with an underscore and are dropped.
func formFields(r *http.Request) (map[string]string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, &app.ValidationError{Message: "Could not read the form: " + err.Error()}
	}
	out := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if strings.HasPrefix(k, "_") || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out, nil
}

func pathKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(mux.Vars(r)["key"])
	if err != nil {
		http.Error(w, "bad record key", http.StatusBadRequest)
		return "", false
	}
	return key, true
}

func isValidation(err error) bool {
	var ve *app.ValidationError
	return errors.As(err, &ve)
}

func statusFor(err error) int {
	var ce *schema.CoerceError
	switch {
	case err == nil:
		return http.StatusOK
	case isValidation(err), errors.Is(err, probe.ErrSchemaDetection), errors.As(err, &ce):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, storage.ErrImmutableKey),
		errors.Is(err, storage.ErrIncompatibleTable),
		errors.Is(err, storage.ErrNoTable):
		return http.StatusConflict
	case errors.Is(err, storage.ErrUnknownColumn):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
