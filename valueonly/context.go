// Package valueonly has a context wrapper that keeps the values of its
// parent but none of its deadline or cancellation. Use it with care, a
// context built from it never expires on its own.
package valueonly

import (
	"context"
	"time"
)

// Context wraps a parent and suppresses its deadline and cancellation.
type Context struct{ context.Context }

func (Context) Deadline() (deadline time.Time, ok bool) { return }
func (Context) Done() <-chan struct{}                   { return nil }
func (Context) Err() error                              { return nil }
