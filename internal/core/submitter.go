// Package core hosts the transaction submitter and the selection of the
// store backend behind it.
package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"txkit/internal/logging"
	"txkit/pkg/domain"
)

// ErrPending is returned by Pending.Result while the submission is in flight.
var ErrPending = errors.New("submission pending")

// Option configures a Submitter.
type Option func(*Submitter)

// WithLogger sets the submitter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Submitter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Submitter) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Submitter) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *Submitter) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// ClockFunc adapts a function to a clock.
type ClockFunc func() time.Time

// WithClock overrides the clock used for audit timestamps and durations.
func WithClock(clock ClockFunc) Option {
	return func(s *Submitter) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Submitter hands transaction requests to a Connection. It adds no retries,
// queueing or timeouts of its own.
type Submitter struct {
	conn    domain.Connection
	logger  *slog.Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	now     ClockFunc
}

// NewSubmitter constructs a submitter over conn.
func NewSubmitter(conn domain.Connection, opts ...Option) *Submitter {
	s := &Submitter{
		conn:    conn,
		logger:  logging.NewNop(),
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connection returns the underlying connection.
func (s *Submitter) Connection() domain.Connection { return s.conn }

// Db returns the connection's current snapshot.
func (s *Submitter) Db() domain.Snapshot { return s.conn.Db() }

// Submit applies req and blocks until the store accepts or rejects it.
// Every failure is a domain.SubmissionError. Submitting the same request
// twice applies it twice.
func (s *Submitter) Submit(ctx context.Context, req domain.Request) (domain.Result, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, OperationTransact)

	var (
		res domain.Result
		err error
	)
	if s.conn == nil {
		err = domain.NewSubmissionError(domain.KindUnavailable, domain.ErrConnectionClosed)
	} else {
		res, err = s.conn.Transact(ctx, req)
	}
	if err != nil && !domain.IsSubmissionError(err, "") {
		err = domain.NewSubmissionError(domain.KindUnavailable, err)
	}
	duration := s.now().Sub(start)

	span.End(err)
	s.metrics.Observe(ctx, OperationTransact, err == nil, duration)
	s.record(ctx, req, res, err, start, duration)
	return res, err
}

func (s *Submitter) record(ctx context.Context, req domain.Request, res domain.Result, err error, start time.Time, duration time.Duration) {
	entry := AuditEntry{
		Operation: OperationTransact,
		Meta:      req.Meta,
		Duration:  duration,
		Timestamp: start,
	}
	if err != nil {
		var se domain.SubmissionError
		errors.As(err, &se)
		entry.Status = AuditStatusError
		entry.Kind = se.Kind
		entry.Error = err.Error()
		s.logger.Warn("submission rejected", "kind", se.Kind, "ops", len(req.Operations), "error", err)
	} else {
		entry.Status = AuditStatusSuccess
		entry.Tx = res.Tx()
		entry.Basis = res.Before().Basis()
		entry.Datoms = len(res.Datoms())
		entry.TempIDs = len(res.TempIDs())
		s.logger.Debug("submission accepted", "tx", res.Tx(), "datoms", entry.Datoms, "duration", duration)
	}
	s.audit.Record(ctx, entry)
}

// SubmitAsync starts the submission on its own goroutine and returns a
// handle to its outcome.
func (s *Submitter) SubmitAsync(ctx context.Context, req domain.Request) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.res, p.err = s.Submit(ctx, req)
	}()
	return p
}

// Close closes the underlying connection.
func (s *Submitter) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Pending is the outcome of an asynchronous submission.
type Pending struct {
	done chan struct{}
	res  domain.Result
	err  error
}

// Done is closed once the submission has completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Await blocks until the submission completes or ctx is done. Cancelling ctx
// stops the wait, not the submission.
func (p *Pending) Await(ctx context.Context) (domain.Result, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (p *Pending) Result() (domain.Result, error) {
	select {
	case <-p.done:
		return p.res, p.err
	default:
		return domain.Result{}, ErrPending
	}
}

// Resolve maps a placeholder from the request to the entity id it became.
func Resolve(res domain.Result, placeholder domain.EntityID) (domain.EntityID, error) {
	return res.Resolve(placeholder)
}
