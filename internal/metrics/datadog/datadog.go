// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Observations are buffered in memory and submitted on a ticker (default once
// per minute) and once more on Close, so a long-running server produces a time
// series rather than a single point at exit.
//
// Concurrency model:
//   - request handlers call IncCounter/ObserveHistogram at any time
//   - Flush snapshots and resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush periodically; Close stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"sheetcrud/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// Service becomes tag "service:<name>" on every metric.
	// If empty, defaults to "sheetcrud".
	Service string

	// Tags are extra Datadog tags (e.g. []string{"team:data"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Test seams; production code leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	opCounts    map[string]float64 // op\x00status -> count
	opDurations map[string][]float64
	rowsLoaded  float64
	uploadBytes []float64

	httpReqCounts map[string]float64 // status -> count
	httpReqDur    map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush.
// Call it once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop. Credentials come from DD_API_KEY / DD_SITE via
// dd.NewDefaultContext; network errors surface from Flush.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.Service is empty, defaults to "sheetcrud".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	service := opts.Service
	if service == "" {
		service = "sheetcrud"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "service:"+service)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		opCounts:      make(map[string]float64),
		opDurations:   make(map[string][]float64),
		httpReqCounts: make(map[string]float64),
		httpReqDur:    make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.OperationsTotal:
		op := labels["op"]
		if op == "" {
			return
		}
		b.opCounts[opStatusKey(op, labels["status"])] += delta

	case metrics.RowsLoadedTotal:
		b.rowsLoaded += delta

	case metrics.HTTPRequestsTotal:
		b.httpReqCounts[statusOrUnknown(labels)] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.OperationDurationSeconds:
		op := labels["op"]
		if op == "" {
			return
		}
		k := opStatusKey(op, labels["status"])
		b.opDurations[k] = append(b.opDurations[k], value)

	case metrics.UploadBytes:
		b.uploadBytes = append(b.uploadBytes, value)

	case metrics.HTTPDurationSeconds:
		s := statusOrUnknown(labels)
		b.httpReqDur[s] = append(b.httpReqDur[s], value)
	}
}

func statusOrUnknown(labels metrics.Labels) string {
	if s := labels["status"]; s != "" {
		return s
	}
	return "unknown"
}

// snapshot is the detached buffer state used to build one flush payload.
type snapshot struct {
	opCounts    map[string]float64
	opDurations map[string][]float64
	rowsLoaded  float64
	uploadBytes []float64

	httpReqCounts map[string]float64
	httpReqDur    map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		opCounts:      b.opCounts,
		opDurations:   b.opDurations,
		rowsLoaded:    b.rowsLoaded,
		uploadBytes:   b.uploadBytes,
		httpReqCounts: b.httpReqCounts,
		httpReqDur:    b.httpReqDur,
	}

	b.opCounts = make(map[string]float64)
	b.opDurations = make(map[string][]float64)
	b.rowsLoaded = 0
	b.uploadBytes = nil
	b.httpReqCounts = make(map[string]float64)
	b.httpReqDur = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.opCounts) == 0 &&
		len(s.opDurations) == 0 &&
		s.rowsLoaded == 0 &&
		len(s.uploadBytes) == 0 &&
		len(s.httpReqCounts) == 0 &&
		len(s.httpReqDur) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Buffers are reset even if submission fails; delivery is at most once.
// Flush returns nil without submitting when nothing was recorded.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed timestamp.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.opCounts)+len(s.httpReqCounts)+32)

	for k, v := range s.opCounts {
		if v == 0 {
			continue
		}
		op, status := splitOpStatusKey(k)
		tags := withTags(b.baseTags, "op:"+op, "status:"+status)
		series = append(series, countSeries("sheetcrud.operations.total", v, tags, nowUnix))
	}
	for k, samples := range s.opDurations {
		op, status := splitOpStatusKey(k)
		addPercentiles(&series, "sheetcrud.operation.duration_seconds", samples,
			withTags(b.baseTags, "op:"+op, "status:"+status), nowUnix)
	}

	if s.rowsLoaded != 0 {
		series = append(series, countSeries("sheetcrud.rows_loaded.total", s.rowsLoaded, b.baseTags, nowUnix))
	}
	addPercentiles(&series, "sheetcrud.upload.bytes", s.uploadBytes, b.baseTags, nowUnix)

	for status, v := range s.httpReqCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("sheetcrud.http.requests.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, samples := range s.httpReqDur {
		addPercentiles(&series, "sheetcrud.http.request_duration_seconds", samples,
			withTags(b.baseTags, "status:"+status), nowUnix)
	}

	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges for samples.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func opStatusKey(op, status string) string {
	return op + "\x00" + status
}

func splitOpStatusKey(k string) (op, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:data".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
