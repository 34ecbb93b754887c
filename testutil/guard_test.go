package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred Predicate
		in   string
		want bool
	}{
		{"domain", DomainImportForbidden, "txkit/pkg/domain", true},
		{"domain versioned", DomainImportForbidden, "example.com/mod/pkg/domain@v1", true},
		{"domain lookalike", DomainImportForbidden, "txkit/pkg/domainx", false},
		{"internal", InternalImportForbidden, "txkit/internal/browser", true},
		{"internal nested", InternalImportForbidden, "example.com/mod/internal/x", true},
		{"not internal", InternalImportForbidden, "txkit/pkg/domain", false},
		{"store backend", StoreImportForbidden, "txkit/internal/infra/persistence/sqlite", true},
		{"submitter", StoreImportForbidden, "txkit/internal/core", true},
		{"blob", StoreImportForbidden, "txkit/internal/blob", false},
		{"any of", AnyOf(DomainImportForbidden, StoreImportForbidden), "txkit/internal/core", true},
		{"any of none", AnyOf(), "txkit/internal/core", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("%s: pred(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
}

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"txkit/pkg/domain\"\n)\nvar _ = fmt.Sprint\nvar _ domain.EntityID\n")
	writeGo(t, dir, "a_test.go", "package tmp\nimport \"txkit/internal/core\"\nvar _ core.Option\n")
	writeGo(t, dir, "notes.txt", "import \"txkit/internal/core\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeGo(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"txkit/internal/core\"\n")

	viols, err := directImportViolations(dir, AnyOf(DomainImportForbidden, InternalImportForbidden))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "txkit/pkg/domain (in a.go)" {
		t.Fatalf("expected only the a.go domain import, got %v", viols)
	}

	AssertNoDirectImports(t, dir, InternalImportForbidden, "test files and subdirectories are skipped")
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "bad.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	defer func() { goListDeps = orig }()

	goListDeps = func(pattern string) ([]byte, error) {
		if pattern != "./x" {
			return nil, fmt.Errorf("unexpected pattern %s", pattern)
		}
		return []byte("fmt\n txkit/pkg/domain \n\ntxkit/internal/browser\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./x", DomainImportForbidden)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "txkit/pkg/domain" {
		t.Fatalf("unexpected violations %v", viols)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("no module"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations("./x", DomainImportForbidden); err == nil || string(out) != "no module" {
		t.Fatalf("expected go list failure to surface, got %v %q", err, out)
	}
}

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var r recorder
	failIfViolations(&r, "forbidden", "reason", nil)
	if r.msg != "" {
		t.Fatalf("expected no failure, got %q", r.msg)
	}
	failIfViolations(&r, "forbidden", "reason", []string{"a", "b"})
	if !strings.Contains(r.msg, "forbidden (reason):\na\nb") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}
