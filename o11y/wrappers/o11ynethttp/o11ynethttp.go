// Package o11ynethttp traces plain net/http handlers, for servers that do
// not go through gin.
package o11ynethttp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/honeycombio/beeline-go/wrappers/common"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/o11y/wrappers/baggage"
)

type routeRecorderKey struct{}

// Middleware wraps handler so each request runs inside a span continued
// from the request headers, with the o11y.Provider available on the
// request context.
//
// The header parsing follows beeline's own hnynethttp wrapper.
func Middleware(provider o11y.Provider, name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// TODO: extract the propagation headers ourselves instead of leaning on beeline's parser
		ctx, span := common.StartSpanOrTraceFromHTTP(r)
		defer span.Send()

		provider.AddFieldToTrace(ctx, "server_name", name)
		recorder := NewRouteRecorder()
		ctx = o11y.WithProvider(ctx, provider)
		ctx = o11y.WithBaggage(ctx, baggage.Get(ctx, r))
		ctx = context.WithValue(ctx, routeRecorderKey{}, recorder)
		r = r.WithContext(ctx)

		// The path makes a usable if potentially high cardinality default
		// for the name and route, handlers are expected to override both
		// when they know better.
		span.AddField("name", fmt.Sprintf("http-server %s: %s %s", name, r.Method, r.URL.Path))
		span.AddField("request.route", "unknown")

		sr := &statusRecorder{ResponseWriter: w}
		handler.ServeHTTP(sr, r)
		status := sr.Status()
		span.AddField("response.status_code", status)

		if m := provider.MetricsProvider(); m != nil {
			_ = m.TimeInMilliseconds("handler",
				float64(time.Since(start).Nanoseconds())/1000000.0,
				[]string{
					"server_name:" + name,
					"request.method:" + r.Method,
					"request.route:" + recorder.Route(),
					"response.status_code:" + strconv.Itoa(status),
				},
				1,
			)
		}
	})
}

// RouteRecorder lets a handler report the low cardinality route it matched
// back to the middleware that invoked it.
type RouteRecorder struct {
	route string
	mu    sync.RWMutex
}

func NewRouteRecorder() *RouteRecorder {
	return &RouteRecorder{route: "unknown"}
}

// SetRoute records the route pattern the handler matched.
func (r *RouteRecorder) SetRoute(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.route = route
}

// Route returns the recorded route, or "unknown".
func (r *RouteRecorder) Route() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.route
}

// GetRouteRecorderFromContext returns the recorder Middleware stored on
// the request context, or nil outside the middleware.
func GetRouteRecorderFromContext(ctx context.Context) *RouteRecorder {
	if ctx == nil {
		return nil
	}
	rec, ok := ctx.Value(routeRecorderKey{}).(*RouteRecorder)
	if !ok {
		return nil
	}
	return rec
}

// statusRecorder keeps the first status code written so the middleware can
// record it.
type statusRecorder struct {
	http.ResponseWriter
	once   sync.Once
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.once.Do(func() {
		w.status = status
	})
	w.ResponseWriter.WriteHeader(status)
}

// Status returns the recorded code, or 200 when the handler never called
// WriteHeader explicitly.
func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
