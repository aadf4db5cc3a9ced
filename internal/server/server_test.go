package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sheetcrud/internal/app"
	"sheetcrud/internal/storage"
	"sheetcrud/internal/storage/sqlite"
)

func xlsxBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

var people = [][]any{
	{"Name", "Age"},
	{"Alice", 30},
	{"Alice", 25},
	{"Bob", 30},
}

func newServer(t *testing.T, limits app.Limits) *Server {
	t.Helper()

	gw, err := sqlite.Open(context.Background(), storage.Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	quiet := log.New(io.Discard, "", 0)
	s := New(app.NewSession(gw, app.Options{Limits: limits, Logger: quiet}), Options{Logger: quiet})
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, name string, body []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func formRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func document(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	return doc
}

func uploadPeople(t *testing.T, s *Server) {
	t.Helper()
	rec := do(t, s, uploadRequest(t, "people.xlsx", xlsxBytes(t, people)))
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestIndex_BeforeUpload(t *testing.T) {
	t.Parallel()
	s := newServer(t, app.Limits{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	doc := document(t, rec)
	require.Equal(t, 1, doc.Find("form#upload").Length())
	require.Equal(t, 0, doc.Find("table#records").Length())
	hint := doc.Find("form#upload small").Text()
	require.Contains(t, hint, "up to 50 MiB and 10,000 rows. ")
	require.Contains(t, hint, "unless every cell in it is a number or a date")
}

func TestUpload_RedirectsAndShowsRecords(t *testing.T) {
	t.Parallel()
	s := newServer(t, app.Limits{})

	rec := do(t, s, uploadRequest(t, "people.xlsx", xlsxBytes(t, people)))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/?"), loc)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, loc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := document(t, rec)
	require.Contains(t, doc.Find("#notice").Text(), "Loaded 3 rows from people.xlsx")
	require.Equal(t, 3, doc.Find("table#records tbody tr").Length())
	require.Equal(t, "id", doc.Find("table#records th.key").Text())
}

func TestUpload_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		limits app.Limits
		req    func(t *testing.T) *http.Request
		want   string
	}{
		{
			name: "extension",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "people.csv", []byte("Name,Age\nAlice,30\n"))
			},
			want: "Unsupported file type",
		},
		{
			name:   "size",
			limits: app.Limits{MaxUploadBytes: 100},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "people.xlsx", xlsxBytes(t, people))
			},
			want: "the limit is 100 B",
		},
		{
			name: "missing_file",
			req: func(t *testing.T) *http.Request {
				var buf bytes.Buffer
				mw := multipart.NewWriter(&buf)
				require.NoError(t, mw.WriteField("note", "x"))
				require.NoError(t, mw.Close())
				req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
			want: "Choose a .xlsx or .xls file",
		},
		{
			name: "corrupt",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "people.xlsx", []byte("not a workbook"))
			},
			want: "Could not detect a table",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newServer(t, tt.limits)

			rec := do(t, s, tt.req(t))
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			doc := document(t, rec)
			require.Contains(t, doc.Find("#error").Text(), tt.want)
			require.Equal(t, 0, doc.Find("table#records").Length())
		})
	}
}

func TestCreate_InvalidFieldIsShownAgain(t *testing.T) {
	t.Parallel()
	s := newServer(t, app.Limits{})
	uploadPeople(t, s)

	rec := do(t, s, formRequest("/records", url.Values{"Name": {"Cara"}, "Age": {"old"}}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	doc := document(t, rec)
	require.Equal(t, "must be a whole number", doc.Find(`form#create .field-error[data-field="Age"]`).Text())
	val, _ := doc.Find(`form#create input[name="Age"]`).Attr("value")
	require.Equal(t, "old", val)
	val, _ = doc.Find(`form#create input[name="Name"]`).Attr("value")
	require.Equal(t, "Cara", val)
}

func TestCreateUpdateDelete(t *testing.T) {
	t.Parallel()
	s := newServer(t, app.Limits{})
	uploadPeople(t, s)

	rec := do(t, s, formRequest("/records", url.Values{"Name": {"Cara"}, "Age": {"41"}, "_token": {"ignored"}}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "Created+record+4")

	rec = do(t, s, formRequest("/records/4", url.Values{"Age": {"42"}}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	require.Contains(t, loc, "tab=edit")
	require.Contains(t, loc, "key=4")

	rec = do(t, s, httptest.NewRequest(http.MethodGet, loc, nil))
	doc := document(t, rec)
	val, _ := doc.Find(`form#edit input[name="Age"]`).Attr("value")
	require.Equal(t, "42", val)

	rec = do(t, s, formRequest("/records/4/delete", url.Values{}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	doc = document(t, rec)
	require.Equal(t, 1, doc.Find("form#delete").Length())
	require.Contains(t, doc.Find("#error").Text(), "Confirm the deletion")

	rec = do(t, s, formRequest("/records/4/delete", url.Values{"_confirm": {"yes"}}))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	doc = document(t, rec)
	require.Equal(t, 3, doc.Find("table#records tbody tr").Length())
	require.Equal(t, 0, doc.Find(`table#records tr[data-key="4"]`).Length())
}

func TestMissingRecord(t *testing.T) {
	t.Parallel()
	s := newServer(t, app.Limits{})
	uploadPeople(t, s)

	rec := do(t, s, formRequest("/records/99", url.Values{"Age": {"1"}}))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "That record no longer exists.", document(t, rec).Find("#error").Text())

	rec = do(t, s, formRequest("/records/99/delete", url.Values{"_confirm": {"yes"}}))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/?tab=edit&key=99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, document(t, rec).Find("#error").Text(), `No record with id "99"`)
}

func TestEscapedKeys(t *testing.T) {
	t.Parallel()
	s := newServer(t, app.Limits{})

	rows := [][]any{{"Code", "Qty"}, {"A/1", 1}, {"B 2", 2}}
	rec := do(t, s, uploadRequest(t, "codes.xlsx", xlsxBytes(t, rows)))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/?tab=delete&key=A%2F1&confirm=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	action, _ := document(t, rec).Find("form#delete").Attr("action")
	require.Equal(t, "/records/A%2F1/delete", action)

	rec = do(t, s, formRequest(action, url.Values{"_confirm": {"yes"}}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "Deleted+record+A%2F1")
}

func TestHealthAndSchema(t *testing.T) {
	t.Parallel()
	s := newServer(t, app.Limits{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/schema", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	require.Equal(t, "Upload a spreadsheet first.", er.Error)
	require.NotEmpty(t, er.RequestID)

	uploadPeople(t, s)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var h healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	require.Equal(t, healthResponse{Status: "healthy", Timestamp: "2024-03-01T12:00:00Z", Table: "data", Loaded: true}, h)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/schema", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sr schemaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sr))
	require.Equal(t, "id", sr.PrimaryKey)
	require.True(t, sr.Synthesized)
	require.Equal(t, []schemaColumn{
		{Name: "id", Type: "integer", Key: true},
		{Name: "Name", Type: "text"},
		{Name: "Age", Type: "integer"},
	}, sr.Columns)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()
	s := newServer(t, app.Limits{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := do(t, s, req)
	require.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		requestIDMiddleware, recoveryMiddleware(log.New(&logs, "", 0)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, logs.String(), "panic serving GET /")
	require.Contains(t, rec.Body.String(), rec.Header().Get(RequestIDHeader))
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	s := newServer(t, app.Limits{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/upload", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
