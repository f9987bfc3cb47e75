package arena

import (
	"farmvault/testutil"
	"testing"
)

func TestArenaIsALeaf(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportForbidden("farmvault"), "arena knows nothing about records")
}
