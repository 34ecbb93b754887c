// Package browsertest runs browser fixture groups as Go subtests.
package browsertest

import (
	"testing"

	"txkit/internal/browser"
)

// Case is a subtest run against the group's shared session.
type Case struct {
	Name string
	Run  func(t *testing.T, s *browser.Session)
}

// Run opens one session per fixture kind and runs cases as kind/case
// subtests. The session is closed when the kind's subtest ends, even when
// cases fail.
func Run(t *testing.T, f browser.Fixture, cases []Case) {
	t.Helper()
	for _, kind := range f.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			s, err := f.Open(t.Context(), kind)
			if err != nil {
				t.Fatalf("open %s session: %v", kind, err)
			}
			defer func() {
				if err := s.Close(); err != nil {
					t.Errorf("close %s session: %v", kind, err)
				}
			}()
			for _, c := range cases {
				t.Run(c.Name, func(t *testing.T) {
					c.Run(t, s)
				})
			}
		})
	}
}
