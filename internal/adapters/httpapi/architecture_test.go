package httpapi_test

import (
	"testing"

	"navisol/testutil"
)

func TestHandlersUseServiceOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.ModuleImport("internal/infra", "cmd", "internal/config"),
		"handlers go through core.Service and blob.Store")
}
