package termination

import (
	"context"
	"syscall"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestHandle_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	assert.Check(t, Handle(ctx, time.Minute))
}

func TestHandle_Signal(t *testing.T) {
	errs := make(chan error)
	go func() {
		errs <- Handle(context.Background(), 0)
	}()

	// Give Handle a moment to install its signal handler.
	time.Sleep(50 * time.Millisecond)
	assert.Assert(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case err := <-errs:
		assert.Check(t, cmp.ErrorIs(err, ErrTerminated))
	case <-time.After(2 * time.Second):
		t.Fatal("termination handler did not notice the signal")
	}
}
