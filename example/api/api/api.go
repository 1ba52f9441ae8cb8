package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spantrap/harness/httpserver/ginrouter"
	"github.com/spantrap/harness/o11y"

	"github.com/spantrap/harness/example/store"
	"github.com/spantrap/harness/example/webhook"
)

type API struct {
	router  *gin.Engine
	store   *store.Store
	webhook *webhook.Notifier
	version string
}

type Options struct {
	Store *store.Store
	// Webhook may be nil, writes are then not notified anywhere.
	Webhook *webhook.Notifier
	Version string
}

func New(ctx context.Context, opts Options) *API {
	r := ginrouter.Default(ctx, "api")
	a := &API{
		router:  r,
		store:   opts.Store,
		webhook: opts.Webhook,
		version: opts.Version,
	}

	r.GET("/api/version", a.getVersion)
	r.GET("/api/kv/:key", a.getKey)
	r.PUT("/api/kv/:key", a.putKey)
	r.DELETE("/api/kv/:key", a.deleteKey)
	r.GET("/api/boom", a.getBoom)

	return a
}

func (a *API) Handler() http.Handler {
	return a.router
}

// notify tells the webhook about a write. The write itself has already
// succeeded, so a delivery failure is only worth a warning.
func (a *API) notify(ctx context.Context, event, key string) {
	if a.webhook == nil {
		return
	}
	err := a.webhook.Notify(ctx, event, key)
	if err != nil {
		o11y.Log(ctx, "api: webhook notify failed",
			o11y.Field("event", event),
			o11y.Field("key", key),
			o11y.Field("error", err),
		)
	}
}

// getBoom panics on purpose, to prove the recovery middleware keeps the
// service up.
func (a *API) getBoom(c *gin.Context) {
	panic("boom")
}
