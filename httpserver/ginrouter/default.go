// Package ginrouter builds gin engines with this repo's standard middleware
// already attached.
package ginrouter

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/o11y/wrappers/o11ygin"
)

var setReleaseMode sync.Once

// Default returns an engine wired with tracing, panic recovery and client
// cancellation handling, in that order.
func Default(ctx context.Context, serverName string) *gin.Engine {
	setReleaseMode.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	r := gin.New()
	r.Use(
		o11ygin.Middleware(o11y.FromContext(ctx), serverName, nil),
		o11ygin.Recovery(),
		o11ygin.ClientCancelled(),
	)
	r.UseRawPath = true

	return r
}
