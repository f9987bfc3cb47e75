package snapshot

import (
	"farmvault/testutil"
	"testing"
)

func TestSinksUseBlobPortOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "blob sinks are driver agnostic")
}
