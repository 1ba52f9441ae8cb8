// Package poll retries a condition until it holds or a deadline passes.
package poll

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

// it reports whether polling should stop, and with what error.
type it func() (stop bool, err error)

// AssertIt polls it for up to duration and fails the test on error or
// timeout.
func AssertIt(ctx context.Context, t *testing.T, duration time.Duration, it it) {
	t.Helper()
	assert.NilError(t, ForIt(ctx, duration, it))
}

// ForIt polls it every 50ms for up to duration. The returned error is
// whatever it last returned, or the context error on timeout.
func ForIt(ctx context.Context, duration time.Duration, it it) error {
	return Every(ctx, duration, time.Millisecond*50, it)
}

// Every is ForIt with a caller chosen interval, for conditions that are
// expensive to check or slow to change.
func Every(ctx context.Context, duration, interval time.Duration, it it) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stop, err := it()
		if stop {
			return err
		}
		time.Sleep(interval)
	}
}
