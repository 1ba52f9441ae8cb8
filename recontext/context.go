// Package recontext derives contexts that ignore the parent's deadline
// and cancellation while keeping its values. A fresh deadline is
// mandatory so the derived context cannot get stuck.
package recontext

import (
	"context"
	"time"

	"github.com/spantrap/harness/valueonly"
)

// WithNewDeadline derives a context from parent that keeps its values,
// sheds its cancellation and expires at deadline instead.
func WithNewDeadline(parent context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	return context.WithDeadline(&valueonly.Context{Context: parent}, deadline)
}

// WithNewTimeout derives a context from parent that keeps its values,
// sheds its cancellation and expires after timeout instead.
func WithNewTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(&valueonly.Context{Context: parent}, timeout)
}
