package o11ygin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/o11y/wrappers/baggage"
)

const cancelledKey = "o11ygin-client-cancelled"

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response could be written.
const statusClientClosedRequest = 499

// Middleware traces every request through the router for serverName. Query
// parameters named in queryParams are recorded on the span.
func Middleware(provider o11y.Provider, serverName string, queryParams map[string]struct{}) gin.HandlerFunc {
	m := provider.MetricsProvider()
	return func(c *gin.Context) {
		start := time.Now()

		ctx := o11y.WithProvider(c.Request.Context(), provider)
		ctx = o11y.WithBaggage(ctx, baggage.Get(ctx, c.Request))
		ctx, span := startHandlerSpan(ctx, c, provider, serverName)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		addParamFields(span, c, queryParams)

		// Echo the matched route in an X-Route header so callers and tests
		// can see which handler served them.
		route := c.FullPath()
		if route == "" {
			route = "not-found"
		}
		c.Header("X-Route", route)

		addRequestFields(span, c, serverName)

		defer func() {
			status := c.Writer.Status()
			if c.GetBool(cancelledKey) {
				status = statusClientClosedRequest
			}
			span.AddRawField("http.status_code", status)
			span.AddRawField("http.response_content_length", c.Writer.Size())

			if m == nil {
				return
			}
			elapsedMS := float64(time.Since(start).Nanoseconds()) / 1e6
			_ = m.TimeInMilliseconds("handler", elapsedMS,
				[]string{
					"http.server_name:" + serverName,
					"http.method:" + c.Request.Method,
					"http.route:" + c.FullPath(),
					"http.status_code:" + strconv.Itoa(status),
				},
				1,
			)
		}()

		c.Next()
	}
}

// addParamFields records the path variables gin matched, and the query
// parameters the caller asked to see.
func addParamFields(span o11y.Span, c *gin.Context, queryParams map[string]struct{}) {
	for _, param := range c.Params {
		span.AddRawField("handler.vars."+param.Key, param.Value)
	}
	if queryParams == nil {
		return
	}
	for key, value := range c.Request.URL.Query() {
		if _, ok := queryParams[key]; !ok {
			continue
		}
		switch len(value) {
		case 0:
			span.AddRawField("handler.query."+key, nil)
		case 1:
			span.AddRawField("handler.query."+key, value[0])
		default:
			span.AddRawField("handler.query."+key, value)
		}
	}
}

// addRequestFields adds the otel style server and request attributes.
func addRequestFields(span o11y.Span, c *gin.Context, serverName string) {
	span.AddRawField("meta.type", "http_server")
	span.AddRawField("http.server_name", serverName)
	span.AddRawField("http.route", c.FullPath())
	span.AddRawField("http.client_ip", c.ClientIP())

	span.AddRawField("http.method", c.Request.Method)
	span.AddRawField("http.url", c.Request.URL.String())
	span.AddRawField("http.target", c.Request.URL.Path)
	span.AddRawField("http.host", c.Request.Host)
	span.AddRawField("http.scheme", c.Request.URL.Scheme)
	span.AddRawField("http.user_agent", c.Request.UserAgent())
	span.AddRawField("http.request_content_length", c.Request.ContentLength)
}

// ClientCancelled traps request context cancellation and reports a 499,
// nginx style. A status the handler already wrote is kept.
func ClientCancelled() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		defer func() {
			if errors.Is(ctx.Err(), context.Canceled) {
				c.Set(cancelledKey, true)
				return
			}
			// gin collects errors raised during handling, rendering
			// failures included. Note them on any active span.
			if len(c.Errors) > 0 {
				o11y.AddField(ctx, "gin_internal_error", c.Errors)
			}
		}()
		c.Next()
	}
}

func Recovery() func(c *gin.Context) {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, panicVal interface{}) {
		c.AbortWithStatus(http.StatusInternalServerError)

		ctx := c.Request.Context()
		span := o11y.FromContext(ctx).GetSpan(ctx)

		// ErrAbortHandler usually means one side of a proxied connection
		// went away, which is not a real panic.
		// https://github.com/golang/go/issues/28239
		if err, ok := panicVal.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			// record it as an error without raising it to rollbar
			o11y.AddResultToSpan(span, err)
			return
		}

		_ = o11y.HandlePanic(ctx, span, panicVal, c.Request)
	})
}

// startHandlerSpan continues any trace propagated in the request headers,
// or starts a fresh one rooted at this handler.
func startHandlerSpan(ctx context.Context, c *gin.Context, p o11y.Provider,
	serverName string) (context.Context, o11y.Span) {

	name := fmt.Sprintf("http-server %s: %s %s", serverName, c.Request.Method, c.FullPath())
	if parent := p.GetSpan(ctx); parent != nil {
		return o11y.StartSpan(ctx, name)
	}

	ctx, span := p.Helpers().InjectPropagation(ctx,
		o11y.PropagationContextFromHeader(c.Request.Header))
	span.AddRawField("name", name)
	return ctx, span
}
