package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"txkit/internal/logging"
)

// Case is one test step run against the shared session of a group.
type Case struct {
	Name string
	Run  func(ctx context.Context, s *Session) error
}

// CaseResult is the outcome of a single case.
type CaseResult struct {
	Name     string
	Err      error
	Duration time.Duration
}

// KindReport collects the outcomes for one browser kind.
type KindReport struct {
	Kind      Kind
	SessionID string
	Cases     []CaseResult
	OpenErr   error
	CloseErr  error
}

// Failed reports whether anything went wrong for this kind.
func (r KindReport) Failed() bool {
	if r.OpenErr != nil || r.CloseErr != nil {
		return true
	}
	for _, c := range r.Cases {
		if c.Err != nil {
			return true
		}
	}
	return false
}

// Report lists kind reports in the order the kinds ran.
type Report struct {
	Kinds []KindReport
}

// Failed reports whether any kind failed.
func (r Report) Failed() bool {
	for _, k := range r.Kinds {
		if k.Failed() {
			return true
		}
	}
	return false
}

// Failures returns the failing cases across all kinds as "kind/case" keys.
func (r Report) Failures() map[string]error {
	out := make(map[string]error)
	for _, k := range r.Kinds {
		for _, c := range k.Cases {
			if c.Err != nil {
				out[string(k.Kind)+"/"+c.Name] = c.Err
			}
		}
	}
	return out
}

// Fixture runs a group of cases once per kind, in order. Each kind gets a
// fresh session that is closed after the group whatever the case outcomes.
type Fixture struct {
	Kinds   []Kind
	Factory DriverFactory
	Logger  *slog.Logger
}

func (f Fixture) logger() *slog.Logger {
	if f.Logger == nil {
		return logging.NewNop()
	}
	return f.Logger
}

// Open starts a session for kind with the fixture's factory and logger.
func (f Fixture) Open(ctx context.Context, kind Kind) (*Session, error) {
	s := NewSession(kind, f.Factory, WithLogger(f.logger()))
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Run executes cases against each kind. Case failures are recorded in the
// report; the returned error carries only session open and close failures.
func (f Fixture) Run(ctx context.Context, cases []Case) (Report, error) {
	var (
		report Report
		errs   []error
	)
	for _, kind := range f.Kinds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		kr := f.runKind(ctx, kind, cases)
		report.Kinds = append(report.Kinds, kr)
		if kr.OpenErr != nil {
			errs = append(errs, kr.OpenErr)
		}
		if kr.CloseErr != nil {
			errs = append(errs, kr.CloseErr)
		}
	}
	return report, errors.Join(errs...)
}

func (f Fixture) runKind(ctx context.Context, kind Kind, cases []Case) (kr KindReport) {
	logger := f.logger()
	s := NewSession(kind, f.Factory, WithLogger(logger))
	kr = KindReport{Kind: kind, SessionID: s.ID()}
	if err := s.Open(ctx); err != nil {
		kr.OpenErr = err
		return kr
	}
	defer func() {
		kr.CloseErr = s.Close()
	}()
	for _, c := range cases {
		res := runCase(ctx, s, c)
		if res.Err != nil {
			logger.Info("browser case failed", "kind", string(kind), "case", c.Name, "error", res.Err)
		}
		kr.Cases = append(kr.Cases, res)
	}
	return kr
}

func runCase(ctx context.Context, s *Session, c Case) (res CaseResult) {
	res.Name = c.Name
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("case %s panicked: %v", c.Name, r)
		}
		res.Duration = time.Since(start)
	}()
	if c.Run == nil {
		return res
	}
	res.Err = c.Run(ctx, s)
	return res
}
