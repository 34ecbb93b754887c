package browser

import (
	"context"
	"fmt"
)

// Element is a snapshot of a located DOM node.
type Element struct {
	Selector string
	Text     string
	HTML     string
}

// Driver is one live browser instance. Implementations need not be safe for
// concurrent use; Session serializes calls.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Find(ctx context.Context, selector string) (Element, error)
	Click(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)
	Close() error
}

// DriverFactory opens drivers for the kinds it supports and returns
// ErrUnsupportedBrowser for the rest.
type DriverFactory interface {
	Open(ctx context.Context, kind Kind) (Driver, error)
}

// DriverFactoryFunc adapts a function to DriverFactory.
type DriverFactoryFunc func(ctx context.Context, kind Kind) (Driver, error)

// Open implements DriverFactory.
func (f DriverFactoryFunc) Open(ctx context.Context, kind Kind) (Driver, error) {
	return f(ctx, kind)
}

// Factories routes each kind to its own factory.
type Factories map[Kind]DriverFactory

// Open implements DriverFactory.
func (m Factories) Open(ctx context.Context, kind Kind) (Driver, error) {
	f, ok := m[kind]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBrowser, kind)
	}
	return f.Open(ctx, kind)
}
