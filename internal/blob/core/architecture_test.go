package core

import (
	"farmvault/testutil"
	"testing"
)

func TestBlobPortHasNoModuleImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportForbidden("farmvault"), "drivers import the port, never the reverse")
}
