package o11ynethttp

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/honeycombio/beeline-go/trace"
	"golang.org/x/sync/errgroup"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/spantrap/harness/httpclient"
	"github.com/spantrap/harness/httpserver"
	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/o11y/honeycomb"
	"github.com/spantrap/harness/testing/fakemetrics"
)

func handlerTimer(route, status string) fakemetrics.MetricCall {
	return fakemetrics.MetricCall{
		Metric: "timer",
		Name:   "handler",
		Value:  1,
		Tags: []string{
			"server_name:kv-admin",
			"request.method:POST",
			"request.route:" + route,
			"response.status_code:" + status,
		},
		Rate: 1,
	}
}

func clientTimer(status string) fakemetrics.MetricCall {
	return fakemetrics.MetricCall{
		Metric: "timer",
		Name:   "httpclient",
		Value:  1,
		Tags: []string{
			"http.client_name:kv-client",
			"http.route:/api/keys/%s",
			"http.method:POST",
			"http.status_code:" + status,
			"http.retry:false",
		},
		Rate: 1,
	}
}

var warningCount = fakemetrics.MetricCall{
	Metric:   "count",
	Name:     "warning",
	ValueInt: 1,
	Tags:     []string{"type:o11y"},
	Rate:     1,
}

// startServer serves mux through the tracing middleware and returns an
// instrumented client pointed at it.
func startServer(t *testing.T, ctx context.Context, provider o11y.Provider, mux http.Handler) *httpclient.Client {
	srv, err := httpserver.New(ctx, httpserver.Config{
		Name:    "kv-admin",
		Addr:    "localhost:0",
		Handler: Middleware(provider, "kv-admin", mux),
	})
	assert.Assert(t, err)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx)
	})
	t.Cleanup(func() {
		assert.Check(t, g.Wait())
	})

	return httpclient.New(httpclient.Config{
		Name:    "kv-client",
		BaseURL: "http://" + srv.Addr(),
	})
}

func callKnownAndUnknown(t *testing.T, ctx context.Context, client *httpclient.Client) {
	t.Run("Serves a key that exists", func(t *testing.T) {
		err := client.Call(ctx, httpclient.NewRequest("POST", "/api/keys/%s", time.Second, "motd"))
		assert.Assert(t, err)
	})

	t.Run("Responds 404 for a missing key", func(t *testing.T) {
		err := client.Call(ctx, httpclient.NewRequest("POST", "/api/keys/%s", time.Second, "missing"))
		assert.Check(t, httpclient.HasStatusCode(err, http.StatusNotFound))
	})
}

func TestMiddleware(t *testing.T) {
	m := &fakemetrics.Provider{}

	provider := honeycomb.New(honeycomb.Config{
		Format:  "text",
		Metrics: m,
	})
	ctx := o11y.WithProvider(context.Background(), provider)
	t.Cleanup(func() {
		provider.Close(ctx)
		t.Run("Recorded metrics", func(t *testing.T) {
			// the handler never reported a route, so the route tag stays
			// at its unknown default
			assert.Check(t, cmp.DeepEqual(
				[]fakemetrics.MetricCall{
					warningCount,
					handlerTimer("unknown", "200"),
					clientTimer("200"),
					handlerTimer("unknown", "404"),
					clientTimer("404"),
				},
				m.Calls(), fakemetrics.CMPMetrics, cmpopts.IgnoreFields(fakemetrics.MetricCall{}, "Value", "ValueInt")),
			)
		})
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/keys/", func(w http.ResponseWriter, r *http.Request) {
		// only fixes the span field, the metric route comes from the
		// route recorder which this handler does not touch
		trace.GetSpanFromContext(r.Context()).AddField("request.route", "/api/keys/%s")
		switch r.URL.Path {
		case "/api/keys/motd":
			_, _ = io.WriteString(w, "welcome to the key value service")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	client := startServer(t, ctx, provider, mux)
	callKnownAndUnknown(t, ctx, client)
}

func TestMiddleware_WithSampling(t *testing.T) {
	m := &fakemetrics.Provider{}

	provider := honeycomb.New(honeycomb.Config{
		Format:       "text",
		Metrics:      m,
		SampleTraces: true,
		SampleKeyFunc: func(m map[string]interface{}) string {
			return "api"
		},
		SampleRates: map[string]int{
			"api": 20000,
		},
	})
	ctx := o11y.WithProvider(context.Background(), provider)
	t.Cleanup(func() {
		provider.Close(ctx)
		t.Run("Recorded metrics", func(t *testing.T) {
			// sampled spans must still produce metrics, with the route the
			// handler recorded
			assert.Check(t, cmp.DeepEqual(
				[]fakemetrics.MetricCall{
					warningCount,
					handlerTimer("/api/keys/", "200"),
					clientTimer("200"),
					handlerTimer("/api/keys/", "404"),
					clientTimer("404"),
				},
				m.Calls(), fakemetrics.CMPMetrics, cmpopts.IgnoreFields(fakemetrics.MetricCall{}, "Value", "ValueInt")),
			)
		})
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/keys/", func(w http.ResponseWriter, r *http.Request) {
		GetRouteRecorderFromContext(r.Context()).SetRoute("/api/keys/")

		switch r.URL.Path {
		case "/api/keys/motd":
			_, _ = io.WriteString(w, "welcome to the key value service")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	client := startServer(t, ctx, provider, mux)
	callKnownAndUnknown(t, ctx, client)
}
