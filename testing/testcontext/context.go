package testcontext

import (
	"context"

	"github.com/spantrap/harness/config/o11y"
)

// ctx is a global singleton, initialised at package time so parallel tests
// share one provider rather than racing to install their own.
var ctx = newContext()

// Background returns a context with a working o11y provider installed, so
// code under test traces and logs the same way it does in production.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	cx, _, err := o11y.Setup(context.Background(), o11y.Config{
		Service: "harness-tests",
		Mode:    "test",
		Format:  "text",
	})
	if err != nil {
		panic(err)
	}
	return cx
}
