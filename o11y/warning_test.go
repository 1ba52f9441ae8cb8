package o11y

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestWarning(t *testing.T) {
	msg := "a managed error string"
	warning := &wrapWarnError{}

	orig := NewWarning(msg)

	t.Run("unwrapped", func(t *testing.T) {
		assert.Check(t, errors.As(orig, &warning))
		assert.Check(t, cmp.Equal(orig.Error(), msg))
		assert.Check(t, IsWarning(orig))
	})

	t.Run("one wrap", func(t *testing.T) {
		err := fmt.Errorf("some other error: %w", orig)
		assert.Check(t, errors.As(err, &warning))
		assert.Check(t, errors.Is(err, orig))
		assert.Check(t, cmp.ErrorContains(err, msg))
		assert.Check(t, IsWarning(err))
	})

	t.Run("two wraps", func(t *testing.T) {
		err := fmt.Errorf("another error: %w", fmt.Errorf("some other error: %w", orig))
		assert.Check(t, errors.As(err, &warning))
		assert.Check(t, errors.Is(err, orig))
		assert.Check(t, cmp.ErrorContains(err, msg))
		assert.Check(t, IsWarning(err))
	})

	t.Run("two warnings are not Is equal", func(t *testing.T) {
		err1 := NewWarning("warning 1")
		err2 := NewWarning("warning 2")

		assert.Check(t, !errors.Is(err1, err2))
	})
}

func TestDontErrorTrace(t *testing.T) {
	err := NewWarning("warn")
	warning := &wrapWarnError{}
	assert.Check(t, errors.As(err, &warning))
	assert.Check(t, DontErrorTrace(err))

	err = fmt.Errorf("wrapped: %w", context.DeadlineExceeded)
	assert.Check(t, DontErrorTrace(err))

	err = fmt.Errorf("wrapped: %w", context.Canceled)
	assert.Check(t, DontErrorTrace(err))

	assert.Check(t, !DontErrorTrace(errors.New("real error")))
}
