package browser

import (
	"fmt"
	"strings"
)

// Kind names a browser target a DriverFactory knows how to open.
type Kind string

// Kinds shipped with the package.
const (
	KindChrome         Kind = "chrome"
	KindChromeHeadless Kind = "chrome-headless"
	KindMemory         Kind = "memory"
)

// ParseKinds converts configured kind names, rejecting blanks and duplicates.
func ParseKinds(names []string) ([]Kind, error) {
	out := make([]Kind, 0, len(names))
	seen := make(map[Kind]struct{}, len(names))
	for _, name := range names {
		k := Kind(strings.TrimSpace(strings.ToLower(name)))
		if k == "" {
			return nil, fmt.Errorf("browser kind must not be empty")
		}
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("duplicate browser kind %q", k)
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}
