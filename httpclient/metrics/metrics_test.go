package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"

	"github.com/spantrap/harness/httpclient"
	"github.com/spantrap/harness/httpclient/metrics"
	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/o11y/honeycomb"
	"github.com/spantrap/harness/system"
	"github.com/spantrap/harness/testing/fakestatsd"
	"github.com/spantrap/harness/testing/testcontext"
)

func TestMetrics(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond * 100)
		w.WriteHeader(http.StatusOK)
	}))

	// fireRequests runs n calls against route at once and waits for them all.
	fireRequests := func(ctx context.Context, cl *httpclient.Client, n int, route string) {
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				err := cl.Call(ctx, httpclient.NewRequest("GET", route, time.Second))
				assert.Assert(t, err)
			}()
		}
		wg.Wait()
	}

	// checkInFlight asserts the instant gauge has drained to zero and the
	// max gauge landed inside (lo, hi].
	checkInFlight := func(t *testing.T, tracer *metrics.Metrics, ctx context.Context, lo, hi float64) {
		t.Helper()
		gauges := tracer.Gauges(ctx)
		g, ok := gauges["in_flight"]
		assert.Check(t, ok)
		assert.Check(t, cmp.Equal(len(g), 2))
		assert.Check(t, cmp.Equal(float64(g[0].Val), float64(0)))
		assert.Check(t, float64(g[1].Val) > lo, g[1].Val)
		assert.Check(t, float64(g[1].Val) <= hi, g[1].Val)

		g, ok = gauges["pool_avail_estimate"]
		assert.Check(t, ok)
		assert.Check(t, cmp.Equal(len(g), 1))
	}

	t.Run("A starved pool", func(t *testing.T) {
		ctx, cancel := context.WithCancel(testcontext.Background())
		defer cancel()

		ctx, done := statsdCapture(t, ctx)
		tracer := metrics.New(ctx)

		sys := system.New(ctx)
		sys.AddGauges(tracer)
		go func() {
			err := sys.Run(time.Millisecond)
			assert.Assert(t, err)
		}()

		concurrentRequests := 100
		maxConnections := 90 // just under the concurrency, to force some waiting
		cl := httpclient.New(httpclient.Config{
			Name:                  "kv-client",
			BaseURL:               s.URL,
			MaxConnectionsPerHost: maxConnections,
			Tracer:                tracer,
		})

		// a couple of warm up calls so the pool is not empty
		err := cl.Call(ctx, httpclient.NewRequest("GET", "/api/keys/%s", time.Second, "motd"))
		assert.Assert(t, err)
		err = cl.Call(ctx, httpclient.NewRequest("GET", "/api/keys/%s", time.Second, "motd"))
		assert.Assert(t, err)

		fireRequests(ctx, cl, concurrentRequests, "/api/keys")
		checkInFlight(t, tracer, ctx, 70, 100)
		fireRequests(ctx, cl, concurrentRequests, "/api/keys/motd")

		cancel()
		metricLines := done() // wait for the stats to be flushed

		assert.Check(t, len(metricLines) > 900, len(metricLines))
		assert.Check(t, len(metricLines) < 1000, len(metricLines))

		assertTagCount(t, metricLines, "delayed:true", 5, 70)
		assertTagCount(t, metricLines, "starved:true", 5, 70)
		idle := (concurrentRequests - maxConnections) + concurrentRequests
		assertTagCount(t, metricLines, "idle:false", idle-20, idle+20)
		assertTagCount(t, metricLines, "reused:false", maxConnections-60, maxConnections)
	})

	t.Run("Capacity to spare", func(t *testing.T) {
		ctx, cancel := context.WithCancel(testcontext.Background())
		defer cancel()

		ctx, done := statsdCapture(t, ctx)
		tracer := metrics.New(ctx)

		sys := system.New(ctx)
		sys.AddGauges(tracer)
		go func() {
			err := sys.Run(time.Millisecond)
			assert.Assert(t, err)
		}()

		concurrentRequests := 20
		maxConnections := 70
		cl := httpclient.New(httpclient.Config{
			Name:                  "kv-client",
			BaseURL:               s.URL,
			MaxConnectionsPerHost: maxConnections,
			Tracer:                tracer,
		})

		fireRequests(ctx, cl, concurrentRequests, "/api/keys")
		checkInFlight(t, tracer, ctx, 15, 50)
		fireRequests(ctx, cl, concurrentRequests, "/api/keys/motd")

		cancel()
		metricLines := done() // wait for the stats server to stop

		assert.Check(t, len(metricLines) > 150, len(metricLines))
		assert.Check(t, len(metricLines) < 220, len(metricLines))

		// with capacity to spare nothing queues, the first round makes
		// fresh connections and the second reuses them from idle
		assertTagCount(t, metricLines, "delayed:true", 0, 0)
		assertTagCount(t, metricLines, "starved:true", 0, 0)
		assertTagCount(t, metricLines, "idle:false", concurrentRequests, concurrentRequests)
		assertTagCount(t, metricLines, "reused:false", concurrentRequests, concurrentRequests)
	})
}

// assertTagCount counts the metric tags containing what, and checks the
// count landed inside [min, max].
func assertTagCount(t *testing.T, ls []fakestatsd.Metric, what string, min, max int) {
	t.Helper()
	count := 0

	for _, l := range ls {
		for _, tag := range l.Tags {
			if strings.Contains(tag, what) {
				count++
			}
		}
	}
	t.Logf("found %d matches", count)
	assert.Check(t, count >= min, "count:%d < min:%d", count, min)
	assert.Check(t, count <= max, "count:%d > max:%d", count, max)
}

// statsdCapture routes the context's metrics at a fake statsd server. The
// returned done func polls until the server has seen metrics and hands
// them back.
func statsdCapture(t *testing.T, ctx context.Context) (context.Context, func() []fakestatsd.Metric) {
	s := fakestatsd.New(t)

	stats, err := statsd.New(s.Addr())
	assert.Assert(t, err)

	t.Cleanup(func() {
		_ = stats.Close() // nothing useful to do with a close error
	})

	done := func() []fakestatsd.Metric {
		var captured []fakestatsd.Metric
		poll.WaitOn(t, func(t poll.LogT) poll.Result {
			captured = s.Metrics()
			if len(captured) == 0 {
				return poll.Continue("no metrics found yet")
			}
			return poll.Success()
		})
		return captured
	}

	return o11y.WithProvider(ctx, honeycomb.New(honeycomb.Config{
		Format:  "text",
		Metrics: stats,
	})), done
}
