package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/spantrap/harness/testing/httprecorder"
	"github.com/spantrap/harness/testing/httprecorder/ginrecorder"
	"github.com/spantrap/harness/testing/redisfixture"
	"github.com/spantrap/harness/testing/testcontext"

	"github.com/spantrap/harness/example/client"
	"github.com/spantrap/harness/example/store"
	"github.com/spantrap/harness/example/webhook"
)

type fixture struct {
	baseURL string
	kv      *client.Client
	store   *store.Store
	hooks   *httprecorder.RequestRecorder
}

func startAPI(ctx context.Context, t testing.TB) *fixture {
	t.Helper()

	redis := redisfixture.Setup(ctx, t, redisfixture.Connection{Addr: "localhost:6379"})
	st := store.New(redis.Client)

	hooks := httprecorder.New()
	receiver := gin.New()
	receiver.Use(ginrecorder.Middleware(ctx, hooks))
	receiver.POST("/webhooks/kv", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	hookServer := httptest.NewServer(receiver)
	t.Cleanup(hookServer.Close)

	api := New(ctx, Options{
		Store:   st,
		Webhook: webhook.New(hookServer.URL),
		Version: "dev",
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &fixture{
		baseURL: srv.URL,
		kv:      client.New(srv.URL),
		store:   st,
		hooks:   hooks,
	}
}

// put sends a raw body, for the requests the typed client will not produce.
func (f *fixture) put(t testing.TB, path, body string) (statusCode int) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPut, f.baseURL+path, strings.NewReader(body))
	assert.Assert(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	assert.Assert(t, err)
	defer func() {
		assert.Check(t, resp.Body.Close())
	}()

	return resp.StatusCode
}

func TestAPI_boom(t *testing.T) {
	ctx := testcontext.Background()
	fix := startAPI(ctx, t)

	resp, err := http.Get(fix.baseURL + "/api/boom")
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(resp.StatusCode, http.StatusInternalServerError))
	assert.Check(t, resp.Body.Close())

	t.Run("The panic did not take the server down", func(t *testing.T) {
		_, err := fix.kv.Version(ctx)
		assert.Check(t, err)
	})
}
