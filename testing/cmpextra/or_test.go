package cmpextra

import (
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestOr(t *testing.T) {
	t.Run("passes when any comparison passes", func(t *testing.T) {
		res := Or(cmp.Equal(1, 2), cmp.Equal(3, 3))()
		assert.Check(t, res.Success())
	})

	t.Run("fails with every message when none pass", func(t *testing.T) {
		res := Or(cmp.Equal(1, 2), cmp.Contains("abc", "z"))()
		assert.Assert(t, !res.Success())
		assert.Check(t, cmp.Contains(failureMessage(res), "no comparison passed"))
	})

	t.Run("needs at least two comparisons", func(t *testing.T) {
		res := Or(cmp.Equal(1, 1))()
		assert.Check(t, !res.Success())
	})
}
