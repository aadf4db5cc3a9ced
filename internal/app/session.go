// Package app wires file intake, schema inference, the store and the record
// views into one session per running instance.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sheetcrud/internal/crud"
	"sheetcrud/internal/metrics"
	"sheetcrud/internal/parser"
	"sheetcrud/internal/probe"
	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
	"sheetcrud/pkg/records"
)

// Default upload limits.
const (
	DefaultMaxUploadBytes = 50 << 20
	DefaultMaxRows        = 10000
)

// Limits bound what an upload may contain. Zero values take the defaults.
type Limits struct {
	MaxUploadBytes int64
	MaxRows        int
}

func (l Limits) withDefaults() Limits {
	if l.MaxUploadBytes <= 0 {
		l.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if l.MaxRows <= 0 {
		l.MaxRows = DefaultMaxRows
	}
	return l
}

// Hint describes the limits for the upload form.
func (l Limits) Hint() string {
	l = l.withDefaults()
	return fmt.Sprintf("%s, up to %s and %s rows", strings.Join(parser.SupportedExtensions(), " or "),
		humanize.IBytes(uint64(l.MaxUploadBytes)), humanize.Comma(int64(l.MaxRows)))
}

// Options configure a Session.
type Options struct {
	Limits         Limits
	DatePreference schema.DatePreference
	// Logger defaults to log.Default().
	Logger  *log.Logger
	Verbose bool
}

// Upload is one uploaded file. Size may be -1 when unknown; Body is always
// bounded by Limits.MaxUploadBytes.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// Outcome is the state after a successful action.
type Outcome struct {
	Schema   schema.Schema
	Snapshot records.Table
	// Key is the key of the created record.
	Key any
	// Loaded is the number of rows loaded by an upload.
	Loaded int64
	Notice string
}

// Session owns the gateway and the current schema. It is not safe for
// concurrent use; the HTTP layer serializes actions.
type Session struct {
	gw      storage.Gateway
	limits  Limits
	pref    schema.DatePreference
	logger  *log.Logger
	verbose bool
}

// NewSession returns a session over gw.
func NewSession(gw storage.Gateway, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		gw:      gw,
		limits:  opts.Limits.withDefaults(),
		pref:    opts.DatePreference,
		logger:  logger,
		verbose: opts.Verbose,
	}
}

// Limits returns the effective upload limits.
func (s *Session) Limits() Limits { return s.limits }

// Schema returns the current schema, if a table has been loaded.
func (s *Session) Schema() (schema.Schema, bool) { return s.gw.Schema() }

// Table returns the bound table name.
func (s *Session) Table() string { return s.gw.Table() }

// Upload validates, parses and infers u, then replaces the stored table with
// its rows. Any failure leaves the previous table and schema as they were.
func (s *Session) Upload(ctx context.Context, u Upload) (out Outcome, err error) {
	start := time.Now()
	defer func() { s.finish("upload", start, err) }()

	if !parser.Supported(u.Filename) {
		return Outcome{}, invalidf("Unsupported file type %q; upload %s.", parser.Ext(u.Filename),
			strings.Join(parser.SupportedExtensions(), " or "))
	}
	if u.Size > s.limits.MaxUploadBytes {
		return Outcome{}, s.tooLarge(u.Size)
	}

	body, err := io.ReadAll(io.LimitReader(u.Body, s.limits.MaxUploadBytes+1))
	if err != nil {
		return Outcome{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(body)) > s.limits.MaxUploadBytes {
		return Outcome{}, s.tooLarge(-1)
	}

	sh, err := parser.ReadFirstSheet(u.Filename, bytes.NewReader(body), parser.Options{MaxRows: s.limits.MaxRows})
	switch {
	case errors.Is(err, parser.ErrTooManyRows):
		return Outcome{}, invalidf("The sheet has more than %s data rows.", humanize.Comma(int64(s.limits.MaxRows)))
	case err != nil:
		return Outcome{}, fmt.Errorf("%w: %v", probe.ErrSchemaDetection, err)
	}

	res, err := probe.Infer(sh.Rows, probe.Options{DatePreference: s.pref})
	if err != nil {
		return Outcome{}, err
	}

	n, err := s.gw.Reload(ctx, res.Schema, res.Grid)
	if err != nil {
		return Outcome{}, err
	}
	metrics.RecordUpload(int64(len(body)), n)

	key := res.Schema.PrimaryKey
	if res.Schema.Synthesized {
		key += " (generated)"
	}
	s.logger.Printf("upload: file=%q sheet=%q rows=%d columns=%d key=%s",
		u.Filename, sh.Name, n, len(res.Schema.Columns), key)

	out, err = s.snapshot(ctx)
	if err != nil {
		return Outcome{}, err
	}
	out.Loaded = n
	out.Notice = fmt.Sprintf("Loaded %s rows from %s into table %s (key: %s).",
		humanize.Comma(n), u.Filename, s.gw.Table(), key)
	return out, nil
}

// tooLarge reports an oversized upload. size < 0 means the body was cut off
// at the limit and its real size is unknown.
func (s *Session) tooLarge(size int64) error {
	if size < 0 {
		return invalidf("The file exceeds the %s upload limit.", humanize.IBytes(uint64(s.limits.MaxUploadBytes)))
	}
	return invalidf("The file is %s; the limit is %s.",
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.limits.MaxUploadBytes)))
}

// Snapshot reads every stored record. Before the first upload it returns an
// empty outcome.
func (s *Session) Snapshot(ctx context.Context) (Outcome, error) {
	if _, ok := s.gw.Schema(); !ok {
		return Outcome{}, nil
	}
	return s.snapshot(ctx)
}

func (s *Session) snapshot(ctx context.Context) (Outcome, error) {
	sc, err := s.requireSchema()
	if err != nil {
		return Outcome{}, err
	}
	snap, err := s.gw.ReadAll(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Schema: sc, Snapshot: snap}, nil
}

// Create validates raw form values and inserts one record.
func (s *Session) Create(ctx context.Context, raw map[string]string) (out Outcome, err error) {
	start := time.Now()
	defer func() { s.finish("create", start, err) }()

	sc, err := s.requireSchema()
	if err != nil {
		return Outcome{}, err
	}
	rec, fe := crud.ParseSubmission(sc, raw, crud.ModeCreate)
	if fe != nil {
		return Outcome{}, &ValidationError{Message: "Fix the highlighted fields.", Fields: fe}
	}
	key, err := s.gw.CreateRecord(ctx, rec)
	if err != nil {
		return Outcome{}, err
	}

	out, err = s.snapshot(ctx)
	if err != nil {
		return Outcome{}, err
	}
	out.Key = key
	out.Notice = fmt.Sprintf("Created record %s.", schema.FormatValue(key))
	return out, nil
}

// Update merges raw form values onto the record with the given key.
func (s *Session) Update(ctx context.Context, key string, raw map[string]string) (out Outcome, err error) {
	start := time.Now()
	defer func() { s.finish("update", start, err) }()

	sc, err := s.requireSchema()
	if err != nil {
		return Outcome{}, err
	}
	k, err := sc.CoerceKey(key)
	if err != nil {
		return Outcome{}, err
	}
	current, err := s.gw.ReadAll(ctx)
	if err != nil {
		return Outcome{}, err
	}
	existing, ok := findRecord(sc, current, k)
	if !ok {
		return Outcome{}, storage.Wrap(storage.OpUpdate, s.gw.Table(), fmt.Errorf("%w: %v", storage.ErrNotFound, k))
	}
	submitted, fe := crud.ParseEdit(sc, raw, existing)
	if fe != nil {
		return Outcome{}, &ValidationError{Message: "Fix the highlighted fields.", Fields: fe}
	}

	merged := crud.MergeEdit(existing, submitted)
	delete(merged, sc.PrimaryKey)

	if err := s.gw.UpdateRecord(ctx, k, merged); err != nil {
		return Outcome{}, err
	}

	out, err = s.snapshot(ctx)
	if err != nil {
		return Outcome{}, err
	}
	out.Key = k
	out.Notice = fmt.Sprintf("Updated record %s.", schema.FormatValue(k))
	return out, nil
}

// Delete removes the record with the given key. Without confirmation nothing
// is deleted.
func (s *Session) Delete(ctx context.Context, key string, confirmed bool) (out Outcome, err error) {
	start := time.Now()
	defer func() { s.finish("delete", start, err) }()

	if !confirmed {
		return Outcome{}, invalidf("Confirm the deletion of record %s.", key)
	}
	sc, err := s.requireSchema()
	if err != nil {
		return Outcome{}, err
	}
	k, err := sc.CoerceKey(key)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.gw.DeleteRecord(ctx, k); err != nil {
		return Outcome{}, err
	}

	out, err = s.snapshot(ctx)
	if err != nil {
		return Outcome{}, err
	}
	out.Key = k
	out.Notice = fmt.Sprintf("Deleted record %s.", schema.FormatValue(k))
	return out, nil
}

func (s *Session) requireSchema() (schema.Schema, error) {
	sc, ok := s.gw.Schema()
	if !ok {
		return schema.Schema{}, storage.ErrNoTable
	}
	return sc, nil
}

// finish logs a failed action once and records its metrics.
func (s *Session) finish(op string, start time.Time, err error) {
	d := time.Since(start)
	metrics.RecordOperation(op, err, d)
	if err != nil {
		s.logger.Printf("%s: %v", op, err)
		return
	}
	if s.verbose {
		s.logger.Printf("%s: ok in %s", op, d.Truncate(time.Millisecond))
	}
}

func findRecord(sc schema.Schema, t records.Table, key any) (records.Record, bool) {
	idx := t.ColumnIndex(sc.PrimaryKey)
	if idx < 0 {
		return nil, false
	}
	want := storage.NormalizeKey(key)
	for i, r := range t.Rows {
		if idx < len(r) && storage.NormalizeKey(r[idx]) == want {
			return t.Record(i), true
		}
	}
	return nil, false
}
