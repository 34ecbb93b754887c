// Package memory provides an in-process browser driver over a fixed map of
// pages, for tests and demos that cannot start a real browser.
package memory

import (
	"context"
	"fmt"
	"sync"

	"txkit/internal/browser"
)

// BlankURL is the location of a freshly opened tab.
const BlankURL = "about:blank"

// Element is a node on a page. Clicking an element with an Href navigates.
type Element struct {
	Text string
	HTML string
	Href string
}

// Page is a document reachable at one URL, with elements keyed by selector.
type Page struct {
	Title    string
	Elements map[string]Element
}

// Site maps URLs to pages.
type Site map[string]Page

// Factory opens tabs over a Site. It records open and close events in order.
type Factory struct {
	site  Site
	kinds map[browser.Kind]struct{}

	mu     sync.Mutex
	events []string
}

// NewFactory returns a factory over site. With no kinds every kind is
// accepted.
func NewFactory(site Site, kinds ...browser.Kind) *Factory {
	f := &Factory{site: site}
	if len(kinds) > 0 {
		f.kinds = make(map[browser.Kind]struct{}, len(kinds))
		for _, k := range kinds {
			f.kinds[k] = struct{}{}
		}
	}
	return f
}

// Open implements browser.DriverFactory.
func (f *Factory) Open(_ context.Context, kind browser.Kind) (browser.Driver, error) {
	if f.kinds != nil {
		if _, ok := f.kinds[kind]; !ok {
			return nil, fmt.Errorf("%w: %s", browser.ErrUnsupportedBrowser, kind)
		}
	}
	f.record("open " + string(kind))
	return &Tab{factory: f, kind: kind, url: BlankURL}, nil
}

// Events returns the recorded open/close events.
func (f *Factory) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// Record appends a custom event, letting callers interleave their own steps
// with the lifecycle events.
func (f *Factory) Record(event string) {
	f.record(event)
}

func (f *Factory) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

// Tab is a browser.Driver over the factory's site.
type Tab struct {
	factory *Factory
	kind    browser.Kind
	url     string
	closed  bool
}

func (t *Tab) page() Page {
	return t.factory.site[t.url]
}

func (t *Tab) element(selector string) (Element, error) {
	el, ok := t.page().Elements[selector]
	if !ok {
		return Element{}, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return el, nil
}

// Navigate implements browser.Driver.
func (t *Tab) Navigate(_ context.Context, url string) error {
	if _, ok := t.factory.site[url]; !ok {
		return fmt.Errorf("%w: %s", browser.ErrNavigation, url)
	}
	t.url = url
	return nil
}

// CurrentURL implements browser.Driver.
func (t *Tab) CurrentURL(context.Context) (string, error) {
	return t.url, nil
}

// Title implements browser.Driver.
func (t *Tab) Title(context.Context) (string, error) {
	return t.page().Title, nil
}

// Find implements browser.Driver.
func (t *Tab) Find(_ context.Context, selector string) (browser.Element, error) {
	el, err := t.element(selector)
	if err != nil {
		return browser.Element{}, err
	}
	return browser.Element{Selector: selector, Text: el.Text, HTML: el.HTML}, nil
}

// Click implements browser.Driver.
func (t *Tab) Click(ctx context.Context, selector string) error {
	el, err := t.element(selector)
	if err != nil {
		return err
	}
	if el.Href == "" {
		return nil
	}
	return t.Navigate(ctx, el.Href)
}

// Text implements browser.Driver.
func (t *Tab) Text(_ context.Context, selector string) (string, error) {
	el, err := t.element(selector)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

// Close implements browser.Driver.
func (t *Tab) Close() error {
	if t.closed {
		return fmt.Errorf("tab already closed")
	}
	t.closed = true
	t.factory.record("close " + string(t.kind))
	return nil
}
