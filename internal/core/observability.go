package core

import (
	"context"
	"log/slog"
	"time"

	"txkit/pkg/domain"
)

// OperationTransact labels every submission in metrics, traces and audit.
const OperationTransact = "transact"

// MetricsRecorder observes submission outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span around a submission.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the submission error, if any.
type TraceSpan interface {
	End(err error)
}

// AuditStatus is the outcome recorded for an audit entry.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one submission.
type AuditEntry struct {
	Operation string
	Status    AuditStatus
	Tx        domain.EntityID
	Basis     domain.EntityID
	Datoms    int
	TempIDs   int
	Kind      domain.SubmissionKind
	Error     string
	Meta      map[string]any
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// SlogAuditRecorder writes audit entries to a structured logger.
type SlogAuditRecorder struct {
	logger *slog.Logger
}

// NewSlogAuditRecorder returns a recorder logging through logger.
func NewSlogAuditRecorder(logger *slog.Logger) *SlogAuditRecorder {
	return &SlogAuditRecorder{logger: logger}
}

// Record logs successes at info and failures at warn.
func (r *SlogAuditRecorder) Record(ctx context.Context, entry AuditEntry) {
	attrs := []slog.Attr{
		slog.String("operation", entry.Operation),
		slog.String("status", string(entry.Status)),
		slog.Duration("duration", entry.Duration),
	}
	if entry.Status == AuditStatusSuccess {
		attrs = append(attrs,
			slog.Int64("tx", int64(entry.Tx)),
			slog.Int64("basis", int64(entry.Basis)),
			slog.Int("datoms", entry.Datoms),
			slog.Int("tempids", entry.TempIDs),
		)
	} else {
		attrs = append(attrs, slog.String("kind", string(entry.Kind)), slog.String("error", entry.Error))
	}
	for k, v := range entry.Meta {
		attrs = append(attrs, slog.Any("meta."+k, v))
	}
	level := slog.LevelInfo
	if entry.Status == AuditStatusError {
		level = slog.LevelWarn
	}
	r.logger.LogAttrs(ctx, level, "audit", attrs...)
}
