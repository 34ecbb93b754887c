package browser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txkit/internal/browser"
	"txkit/internal/browser/memory"
)

func openSession(t *testing.T) *browser.Session {
	t.Helper()
	s := browser.NewSession(browser.KindMemory, memory.NewFactory(testSite()))
	require.NoError(t, s.Open(context.Background()))
	return s
}

func TestSessionKnownPage(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	defer func() { require.NoError(t, s.Close()) }()

	require.NoError(t, s.Navigate(ctx, homeURL))
	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Home", title)
	url, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, homeURL, url)

	text, err := s.Text(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", text)
	el, err := s.Find(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, browser.Element{Selector: "h1", Text: "Welcome", HTML: "<h1>Welcome</h1>"}, el)

	require.NoError(t, s.Click(ctx, "button#noop"))
	url, err = s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, homeURL, url)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := browser.NewSession(browser.KindMemory, memory.NewFactory(testSite()))
	assert.Equal(t, browser.StateNotStarted, s.State())
	assert.NotEmpty(t, s.ID())

	err := s.Close()
	assert.True(t, browser.IsSessionError(err, browser.ErrNoSession), "close before open: %v", err)

	_, err = s.Title(ctx)
	assert.True(t, browser.IsSessionError(err, browser.ErrNoSession))

	require.NoError(t, s.Open(ctx))
	assert.Equal(t, browser.StateActive, s.State())
	assert.True(t, browser.IsSessionError(s.Open(ctx), browser.ErrSessionStarted))

	require.NoError(t, s.Close())
	assert.Equal(t, browser.StateClosed, s.State())
	assert.Equal(t, "closed", s.State().String())

	assert.True(t, browser.IsSessionError(s.Close(), browser.ErrNoSession))
	assert.True(t, browser.IsSessionError(s.Navigate(ctx, homeURL), browser.ErrNoSession))
	assert.True(t, browser.IsSessionError(s.Click(ctx, "h1"), browser.ErrNoSession))
	_, err = s.Find(ctx, "h1")
	assert.True(t, browser.IsSessionError(err, browser.ErrNoSession))
	assert.True(t, browser.IsSessionError(s.Open(ctx), browser.ErrNoSession))
}

func TestSessionElementNotFound(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Navigate(ctx, homeURL))

	_, err := s.Text(ctx, "#missing")
	var se *browser.SessionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "text", se.Op)
	assert.Equal(t, browser.KindMemory, se.Kind)
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
	assert.Contains(t, err.Error(), "#missing")

	assert.True(t, browser.IsSessionError(s.Click(ctx, "#missing"), browser.ErrElementNotFound))
	assert.True(t, browser.IsSessionError(s.Navigate(ctx, "https://nowhere.test/"), browser.ErrNavigation))
}

func TestSessionUnsupportedKind(t *testing.T) {
	s := browser.NewSession("netscape", memory.NewFactory(testSite(), browser.KindMemory))
	err := s.Open(context.Background())
	assert.True(t, browser.IsSessionError(err, browser.ErrUnsupportedBrowser))
	assert.Equal(t, browser.StateNotStarted, s.State())

	routed := browser.Factories{browser.KindMemory: memory.NewFactory(testSite())}
	_, err = routed.Open(context.Background(), browser.KindChrome)
	assert.ErrorIs(t, err, browser.ErrUnsupportedBrowser)
	d, err := routed.Open(context.Background(), browser.KindMemory)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestParseKinds(t *testing.T) {
	kinds, err := browser.ParseKinds([]string{"Chrome", " chrome-headless "})
	require.NoError(t, err)
	assert.Equal(t, []browser.Kind{browser.KindChrome, browser.KindChromeHeadless}, kinds)

	_, err = browser.ParseKinds([]string{"chrome", "chrome"})
	assert.ErrorContains(t, err, "duplicate")
	_, err = browser.ParseKinds([]string{""})
	assert.Error(t, err)
}

func TestChromeFactoryRejectsOtherKinds(t *testing.T) {
	_, err := browser.ChromeFactory{}.Open(context.Background(), browser.KindMemory)
	assert.ErrorIs(t, err, browser.ErrUnsupportedBrowser)
}
