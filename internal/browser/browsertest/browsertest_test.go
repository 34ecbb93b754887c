package browsertest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txkit/internal/browser"
	"txkit/internal/browser/memory"
)

func TestRunNestsKindAndCaseSubtests(t *testing.T) {
	site := memory.Site{"https://example.test/": {Title: "Home"}}
	factory := memory.NewFactory(site)
	fixture := browser.Fixture{Kinds: []browser.Kind{"alpha", "beta"}, Factory: factory}

	var names []string
	Run(t, fixture, []Case{
		{Name: "navigate", Run: func(t *testing.T, s *browser.Session) {
			names = append(names, t.Name())
			require.NoError(t, s.Navigate(t.Context(), "https://example.test/"))
		}},
		{Name: "title", Run: func(t *testing.T, s *browser.Session) {
			names = append(names, t.Name())
			title, err := s.Title(t.Context())
			require.NoError(t, err)
			assert.Equal(t, "Home", title)
		}},
	})

	assert.Equal(t, []string{
		t.Name() + "/alpha/navigate",
		t.Name() + "/alpha/title",
		t.Name() + "/beta/navigate",
		t.Name() + "/beta/title",
	}, names)
	assert.Equal(t, []string{"open alpha", "close alpha", "open beta", "close beta"}, factory.Events())
}
