package api

import (
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/spantrap/harness/testing/testcontext"
)

func TestAPI_getVersion(t *testing.T) {
	ctx := testcontext.Background()
	fix := startAPI(ctx, t)

	v, err := fix.kv.Version(ctx)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(v.Service, "kv"))
	assert.Check(t, cmp.Equal(v.Version, "dev"))
}
