package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned by operations on a session that is not active.
	ErrNoSession = errors.New("no active browser session")
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrUnsupportedBrowser is returned when a factory cannot open a kind.
	ErrUnsupportedBrowser = errors.New("unsupported browser")
	// ErrSessionStarted is returned when Open is called twice.
	ErrSessionStarted = errors.New("session already started")
	// ErrNavigation is returned by drivers that cannot load a URL.
	ErrNavigation = errors.New("navigation failed")
)

// SessionError reports a failed session operation.
type SessionError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("browser %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// IsSessionError reports whether err is a SessionError wrapping target.
// A nil target matches any SessionError.
func IsSessionError(err, target error) bool {
	var se *SessionError
	if !errors.As(err, &se) {
		return false
	}
	return target == nil || errors.Is(se.Err, target)
}

func wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var se *SessionError
	if errors.As(err, &se) {
		return err
	}
	return &SessionError{Op: op, Kind: kind, Err: err}
}
