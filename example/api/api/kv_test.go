package api

import (
	"net/http"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/spantrap/harness/testing/testcontext"

	"github.com/spantrap/harness/example/client"
	"github.com/spantrap/harness/example/store"
	"github.com/spantrap/harness/example/webhook"
)

func TestAPI_getKey(t *testing.T) {
	ctx := testcontext.Background()
	fix := startAPI(ctx, t)

	t.Run("Success", func(t *testing.T) {
		assert.Assert(t, t.Run("Seed the store", func(t *testing.T) {
			assert.Assert(t, fix.store.Set(ctx, "build-num", "42", 0))
		}))

		value, err := fix.kv.Get(ctx, "build-num")
		assert.NilError(t, err)
		assert.Check(t, cmp.Equal(value, "42"))
	})

	t.Run("Not found", func(t *testing.T) {
		_, err := fix.kv.Get(ctx, "no-such-key")
		assert.Check(t, cmp.ErrorIs(err, client.ErrNotFound))
	})
}

func TestAPI_putKey(t *testing.T) {
	ctx := testcontext.Background()

	t.Run("Success", func(t *testing.T) {
		fix := startAPI(ctx, t)

		assert.Assert(t, fix.kv.Set(ctx, "pipeline", "green", 0))

		t.Run("Check the key landed in the store", func(t *testing.T) {
			value, err := fix.store.Get(ctx, "pipeline")
			assert.NilError(t, err)
			assert.Check(t, cmp.Equal(value, "green"))
		})

		t.Run("Check the webhook was notified", func(t *testing.T) {
			req := fix.hooks.LastRequest()
			assert.Assert(t, req != nil)

			var ev webhook.Event
			assert.Assert(t, req.Decode(&ev))
			assert.Check(t, cmp.Equal(ev.Event, "set"))
			assert.Check(t, cmp.Equal(ev.Key, "pipeline"))
			assert.Check(t, ev.ID != "")
		})
	})

	t.Run("With a ttl", func(t *testing.T) {
		fix := startAPI(ctx, t)

		assert.Assert(t, fix.kv.Set(ctx, "lease", "held", 30*time.Second))

		value, err := fix.store.Get(ctx, "lease")
		assert.NilError(t, err)
		assert.Check(t, cmp.Equal(value, "held"))
	})

	t.Run("Invalid requests", func(t *testing.T) {
		fix := startAPI(ctx, t)

		t.Run("Missing value", func(t *testing.T) {
			status := fix.put(t, "/api/kv/bad", `{"ttl_seconds": 10}`)
			assert.Check(t, cmp.Equal(status, http.StatusBadRequest))
		})

		t.Run("Negative ttl", func(t *testing.T) {
			status := fix.put(t, "/api/kv/bad", `{"value": "v", "ttl_seconds": -1}`)
			assert.Check(t, cmp.Equal(status, http.StatusBadRequest))
		})

		t.Run("Bad json", func(t *testing.T) {
			status := fix.put(t, "/api/kv/bad", `{`)
			assert.Check(t, cmp.Equal(status, http.StatusBadRequest))
		})

		t.Run("Nothing was stored", func(t *testing.T) {
			_, err := fix.store.Get(ctx, "bad")
			assert.Check(t, cmp.ErrorIs(err, store.ErrNotFound))
		})
	})
}

func TestAPI_deleteKey(t *testing.T) {
	ctx := testcontext.Background()
	fix := startAPI(ctx, t)

	t.Run("Delete an existing key", func(t *testing.T) {
		assert.Assert(t, fix.store.Set(ctx, "doomed", "bye", 0))

		assert.NilError(t, fix.kv.Delete(ctx, "doomed"))

		_, err := fix.store.Get(ctx, "doomed")
		assert.Check(t, cmp.ErrorIs(err, store.ErrNotFound))

		t.Run("Check the webhook was notified", func(t *testing.T) {
			req := fix.hooks.LastRequest()
			assert.Assert(t, req != nil)

			var ev webhook.Event
			assert.Assert(t, req.Decode(&ev))
			assert.Check(t, cmp.Equal(ev.Event, "delete"))
			assert.Check(t, cmp.Equal(ev.Key, "doomed"))
		})
	})

	t.Run("Delete a missing key", func(t *testing.T) {
		err := fix.kv.Delete(ctx, "never-was")
		assert.Check(t, cmp.ErrorIs(err, client.ErrNotFound))
	})
}
