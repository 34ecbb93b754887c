// Package browser runs groups of test cases against browser automation
// sessions, one kind at a time.
package browser

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"txkit/internal/logging"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateNotStarted State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session owns a single driver from Open until Close. Page state carries over
// between callers until one of them navigates away.
type Session struct {
	id      string
	kind    Kind
	factory DriverFactory
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	driver Driver
}

// NewSession prepares a session of kind. Nothing is started until Open.
func NewSession(kind Kind, factory DriverFactory, opts ...SessionOption) *Session {
	s := &Session{
		id:      uuid.NewString(),
		kind:    kind,
		factory: factory,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id, "kind", string(kind))
	return s
}

// ID returns the session id used in logs.
func (s *Session) ID() string { return s.id }

// Kind returns the browser kind.
func (s *Session) Kind() Kind { return s.kind }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open starts the browser. A session opens at most once.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateActive:
		return wrap("open", s.kind, ErrSessionStarted)
	case StateClosed:
		return wrap("open", s.kind, ErrNoSession)
	}
	if s.factory == nil {
		return wrap("open", s.kind, ErrUnsupportedBrowser)
	}
	d, err := s.factory.Open(ctx, s.kind)
	if err != nil {
		s.logger.Warn("browser open failed", "error", err)
		return wrap("open", s.kind, err)
	}
	s.driver = d
	s.state = StateActive
	s.logger.Debug("browser session opened")
	return nil
}

// Close releases the driver. Closing a session that is not active fails.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return wrap("close", s.kind, ErrNoSession)
	}
	err := s.driver.Close()
	s.driver = nil
	s.state = StateClosed
	if err != nil {
		s.logger.Warn("browser close failed", "error", err)
		return wrap("close", s.kind, err)
	}
	s.logger.Debug("browser session closed")
	return nil
}

func (s *Session) do(op string, fn func(Driver) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return wrap(op, s.kind, ErrNoSession)
	}
	return wrap(op, s.kind, fn(s.driver))
}

// Navigate loads url in the session.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.do("navigate", func(d Driver) error {
		s.logger.Debug("navigate", "url", url)
		return d.Navigate(ctx, url)
	})
}

// CurrentURL returns the URL of the loaded page.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var out string
	err := s.do("current-url", func(d Driver) error {
		var err error
		out, err = d.CurrentURL(ctx)
		return err
	})
	return out, err
}

// Title returns the title of the loaded page.
func (s *Session) Title(ctx context.Context) (string, error) {
	var out string
	err := s.do("title", func(d Driver) error {
		var err error
		out, err = d.Title(ctx)
		return err
	})
	return out, err
}

// Find locates the first element matching selector.
func (s *Session) Find(ctx context.Context, selector string) (Element, error) {
	var out Element
	err := s.do("find", func(d Driver) error {
		var err error
		out, err = d.Find(ctx, selector)
		return err
	})
	return out, err
}

// Text returns the text content of the element matching selector.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var out string
	err := s.do("text", func(d Driver) error {
		var err error
		out, err = d.Text(ctx, selector)
		return err
	})
	return out, err
}

// Click clicks the element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.do("click", func(d Driver) error {
		return d.Click(ctx, selector)
	})
}
