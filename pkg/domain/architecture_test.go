package domain

import (
	"farmvault/testutil"
	"testing"
)

// The domain package is imported by everything and must not import anything
// from the module.
func TestDomainHasNoModuleImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportForbidden("farmvault"), "domain depends on the standard library only")
}
