// Package metrics is a small backend-agnostic metrics facade.
//
// Code records through the package-level helpers; cmd/sheetcrud installs a
// concrete backend (Datadog) with SetBackend. Until then every call goes to
// a no-op backend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names.
const (
	OperationsTotal          = "sheetcrud_operations_total"
	OperationDurationSeconds = "sheetcrud_operation_duration_seconds"
	RowsLoadedTotal          = "sheetcrud_rows_loaded_total"
	UploadBytes              = "sheetcrud_upload_bytes"
	HTTPRequestsTotal        = "sheetcrud_http_requests_total"
	HTTPDurationSeconds      = "sheetcrud_http_request_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to the named counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample for the named histogram.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Status returns "ok" for a nil error and "error" otherwise.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordOperation records the outcome and latency of one user action
// (upload, create, update, delete, read).
func RecordOperation(op string, err error, d time.Duration) {
	l := Labels{"op": op, "status": Status(err)}
	IncCounter(OperationsTotal, 1, l)
	ObserveHistogram(OperationDurationSeconds, d.Seconds(), l)
}

// RecordUpload records a completed upload's size and loaded row count.
func RecordUpload(size int64, rows int64) {
	ObserveHistogram(UploadBytes, float64(size), nil)
	IncCounter(RowsLoadedTotal, float64(rows), nil)
}

// RecordHTTP records one served request.
func RecordHTTP(status int, d time.Duration) {
	l := Labels{"status": strconv.Itoa(status)}
	IncCounter(HTTPRequestsTotal, 1, l)
	ObserveHistogram(HTTPDurationSeconds, d.Seconds(), l)
}
