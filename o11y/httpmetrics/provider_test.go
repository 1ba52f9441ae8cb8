package httpmetrics

import (
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/spantrap/harness/config/secret"
	"github.com/spantrap/harness/testing/fakemetricrec"
	"github.com/spantrap/harness/testing/poll"
	"github.com/spantrap/harness/testing/testcontext"
)

func TestProvider_Record(t *testing.T) {
	p := newProvider(Config{Namespace: "kv"})

	assert.NilError(t, p.Gauge("keys", 12, []string{"shard:a"}, 1))
	assert.NilError(t, p.Count("writes", 2, nil, 1))

	assert.Assert(t, cmp.Len(p.data, 2))
	assert.Check(t, cmp.Equal(p.data[0].Type, "gauge"))
	assert.Check(t, cmp.Equal(p.data[0].Name, "kv.keys"))
	assert.Check(t, cmp.Equal(p.data[0].Value, 12.0))
	assert.Check(t, cmp.DeepEqual(p.data[0].Tags, []string{"shard:a"}))
	assert.Check(t, p.data[0].Timestamp > 0)
	assert.Check(t, cmp.Equal(p.data[1].Type, "count"))
	assert.Check(t, cmp.Equal(p.data[1].Name, "kv.writes"))
}

func TestProvider_Publish(t *testing.T) {
	ctx := testcontext.Background()
	rec := fakemetricrec.New(ctx)
	t.Cleanup(rec.Close)

	p := newProvider(Config{
		URL:       rec.URL + "/metrics",
		AuthToken: secret.String("test-token"),
	})

	t.Run("Publish clears the batch", func(t *testing.T) {
		assert.NilError(t, p.Gauge("keys", 1, nil, 1))
		p.Publish(ctx)

		assert.Check(t, cmp.Len(p.data, 0))
		assert.Check(t, cmp.Equal(rec.Totals()["keys"], 1.0))
	})

	t.Run("A rejected publish keeps the batch", func(t *testing.T) {
		rec.SetFail(true)
		assert.NilError(t, p.Count("writes", 3, nil, 1))
		p.Publish(ctx)
		assert.Check(t, cmp.Len(p.data, 1))

		t.Run("And the next publish delivers it", func(t *testing.T) {
			rec.SetFail(false)
			p.Publish(ctx)

			assert.Check(t, cmp.Len(p.data, 0))
			assert.Check(t, cmp.Equal(rec.Totals()["writes"], 3.0))
		})
	})

	t.Run("Metrics recorded during a publish are not lost", func(t *testing.T) {
		assert.NilError(t, p.Gauge("before", 1, nil, 1))

		var eg errgroup.Group
		eg.Go(func() error {
			p.Publish(ctx)
			return nil
		})
		eg.Go(func() error {
			return p.Gauge("during", 1, nil, 1)
		})
		assert.NilError(t, eg.Wait())
		p.Publish(ctx)

		assert.Check(t, cmp.Len(p.data, 0))
		totals := rec.Totals()
		assert.Check(t, cmp.Equal(totals["before"], 1.0))
		assert.Check(t, cmp.Equal(totals["during"], 1.0))
	})
}

func TestProvider_PublishLoop(t *testing.T) {
	ctx := testcontext.Background()

	t.Run("Publishes on an interval", func(t *testing.T) {
		rec := fakemetricrec.New(ctx)
		t.Cleanup(rec.Close)

		p := New(Config{
			URL:             rec.URL + "/metrics",
			PublishInterval: 50 * time.Millisecond,
		})
		t.Cleanup(func() {
			assert.NilError(t, p.Close())
		})

		assert.NilError(t, p.Gauge("keys", 5, nil, 1))
		poll.AssertIt(ctx, t, 2*time.Second, func() (bool, error) {
			return rec.Totals()["keys"] == 5, nil
		})
	})

	t.Run("Close flushes what is still batched", func(t *testing.T) {
		rec := fakemetricrec.New(ctx)
		t.Cleanup(rec.Close)

		p := New(Config{
			URL: rec.URL + "/metrics",
			// long enough that only Close can have published
			PublishInterval: 10 * time.Minute,
		})

		assert.NilError(t, p.Gauge("keys", 7, nil, 1))
		assert.NilError(t, p.Close())
		assert.Check(t, cmp.Equal(rec.Totals()["keys"], 7.0))

		t.Run("And closing again is safe", func(t *testing.T) {
			assert.NilError(t, p.Close())
		})
	})
}
