// Package healthcheck implements the admin API, health probes and runtime
// profiling.
package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hellofresh/health-go/v4"

	"github.com/spantrap/harness/httpserver/ginrouter"
	"github.com/spantrap/harness/system"
)

type API struct {
	router *gin.Engine
}

func New(ctx context.Context, checked []system.HealthChecker) (*API, error) {
	r := ginrouter.Default(ctx, "admin")

	live, ready, err := newProbes(checked)
	if err != nil {
		return nil, fmt.Errorf("failed to create health checks: %w", err)
	}

	r.GET("/live", gin.WrapH(live.Handler()))
	r.GET("/ready", gin.WrapH(ready.Handler()))

	registerPprof(r)

	return &API{router: r}, nil
}

func (a *API) Handler() http.Handler {
	return a.router
}

func newProbes(checked []system.HealthChecker) (live, ready *health.Health, err error) {
	live, err = health.New()
	if err != nil {
		return nil, nil, err
	}
	ready, err = health.New()
	if err != nil {
		return nil, nil, err
	}

	for _, c := range checked {
		name, readyCheck, liveCheck := c.HealthChecks()
		if err := registerCheck(ready, name, readyCheck); err != nil {
			return nil, nil, err
		}
		if err := registerCheck(live, name, liveCheck); err != nil {
			return nil, nil, err
		}
	}

	return live, ready, nil
}

func registerCheck(h *health.Health, name string, check func(ctx context.Context) error) error {
	if check == nil {
		return nil
	}
	return h.Register(health.Config{
		Name:      name,
		Timeout:   time.Second * 5,
		SkipOnErr: false,
		Check:     check,
	})
}

// registerPprof mounts the runtime profiles. Each profile is a static route,
// gin can not mix a wildcard with the special pprof handlers at the same
// level.
func registerPprof(r *gin.Engine) {
	debug := r.Group("/debug/pprof")
	debug.GET("/", gin.WrapF(pprof.Index))
	debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	debug.GET("/profile", gin.WrapF(pprof.Profile))
	debug.GET("/symbol", gin.WrapF(pprof.Symbol))
	debug.POST("/symbol", gin.WrapF(pprof.Symbol))
	debug.GET("/trace", gin.WrapF(pprof.Trace))
	for _, p := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		debug.GET("/"+p, gin.WrapH(pprof.Handler(p)))
	}
}
