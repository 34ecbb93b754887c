package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var expvarSeq uint64

// PrometheusMetricsRecorder exports submission counts and latencies.
type PrometheusMetricsRecorder struct {
	submissions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the txkit collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	rec := &PrometheusMetricsRecorder{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txkit",
			Name:      "submissions_total",
			Help:      "Transaction submissions by operation and outcome.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "txkit",
			Name:      "submission_duration_seconds",
			Help:      "Latency of transaction submissions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{rec.submissions, rec.latency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return rec, nil
}

// Observe records a submission outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	r.submissions.WithLabelValues(operation, status).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// MultiMetricsRecorder fans each observation out to every recorder.
type MultiMetricsRecorder []MetricsRecorder

// Observe forwards to each recorder in order.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, rec := range m {
		rec.Observe(ctx, operation, success, duration)
	}
}

// ExpvarMetricsRecorder publishes submission counters under one expvar map.
// Keys are "<operation>.<status>" counts and "<operation>.duration_ms" totals.
type ExpvarMetricsRecorder struct {
	name string
	vars *expvar.Map
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated name when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("txkit_submitter_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	return &ExpvarMetricsRecorder{name: name, vars: expvar.NewMap(name)}
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Count returns the number of observations for operation with status
// "success" or "error".
func (r *ExpvarMetricsRecorder) Count(operation, status string) int64 {
	if v, ok := r.vars.Get(operation + "." + status).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

// DurationMS returns the summed latency of operation in milliseconds.
func (r *ExpvarMetricsRecorder) DurationMS(operation string) float64 {
	if v, ok := r.vars.Get(operation + ".duration_ms").(*expvar.Float); ok {
		return v.Value()
	}
	return 0
}

// Observe records a submission outcome. Unlabelled observations are dropped.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.vars.Add(operation+"."+status, 1)
	r.vars.AddFloat(operation+".duration_ms", float64(duration)/float64(time.Millisecond))
}

// SpanRecord is one finished span as written by JSONTracer.
type SpanRecord struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Started    time.Time `json:"started"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTracer writes each finished span as one JSON line.
type JSONTracer struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewJSONTracer returns a tracer writing to w.
func NewJSONTracer(w io.Writer) *JSONTracer {
	return &JSONTracer{enc: json.NewEncoder(w), now: time.Now}
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, rec: SpanRecord{Operation: operation, Started: t.now().UTC()}}
}

type jsonSpan struct {
	tracer *JSONTracer
	rec    SpanRecord
	once   sync.Once
}

func (s *jsonSpan) End(err error) {
	s.once.Do(func() {
		s.rec.Status = "success"
		if err != nil {
			s.rec.Status = "error"
			s.rec.Error = err.Error()
		}
		s.rec.DurationMS = float64(s.tracer.now().Sub(s.rec.Started)) / float64(time.Millisecond)
		s.tracer.mu.Lock()
		defer s.tracer.mu.Unlock()
		_ = s.tracer.enc.Encode(s.rec)
	})
}
