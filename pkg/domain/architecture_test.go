package domain

import (
	"testing"

	"txkit/testutil"
)

// The fact model is shared by every backend and must not reach back into
// the implementations.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "pkg/domain must not import internal packages")
}
