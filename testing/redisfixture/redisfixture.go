// Package redisfixture hands each test its own flushed Redis database.
package redisfixture

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/go-redis/redis/v8"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/testing/internal/types"
)

// Fixture is a Redis client pinned to the database reserved for one test.
type Fixture struct {
	*redis.Client
	DB int
}

// Connection locates the Redis server the tests should use.
type Connection struct {
	Addr string
}

var (
	countOnce sync.Once
	databases uint32
)

// Setup connects to Redis, picks a database keyed on the test name, flushes
// it and returns the client. The test is skipped when Redis is not running.
func Setup(ctx context.Context, t types.TestingTB, con Connection) *Fixture {
	ctx, span := o11y.StartSpan(ctx, "redisfixture: setup")
	defer span.End()

	countOnce.Do(func() {
		databases = countDatabases(ctx, t, con)
	})

	switch {
	case databases == 0:
		t.Skip("Redis not available")
	case databases < 1000000:
		t.Fatal("not enough Redis databases for a unique DB per test, start Redis with '--databases 1000000'")
	}

	// Test binaries for different packages run in parallel, so picking the
	// DB from the test name keeps them out of each other's data.
	db := dbFor(t.Name(), databases)
	span.AddField("db", db)

	client := redis.NewClient(&redis.Options{
		Addr: con.Addr,
		DB:   db,
	})
	t.Cleanup(func() {
		assert.Check(t, client.Close())
	})

	requireRedis(ctx, t, client)
	assert.Assert(t, client.FlushDB(ctx).Err())

	return &Fixture{
		Client: client,
		DB:     db,
	}
}

// requireRedis skips the test when Redis is unreachable. A DB index error is
// a real failure, the server is up but has too few databases.
func requireRedis(ctx context.Context, t types.TestingTB, client *redis.Client) {
	err := client.Ping(ctx).Err()
	if err == nil {
		return
	}
	if err.Error() == "ERR DB index is out of range" {
		assert.Assert(t, err)
		return
	}
	t.Skip("Redis not available")
}

func countDatabases(ctx context.Context, t types.TestingTB, con Connection) uint32 {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: con.Addr})
	defer func() {
		assert.Check(t, client.Close())
	}()

	requireRedis(ctx, t, client)

	res := client.ConfigGet(ctx, "databases")
	assert.Assert(t, res.Err())

	vals := res.Val()
	assert.Assert(t, cmp.Len(vals, 2))

	n, err := strconv.ParseUint(vals[1].(string), 10, 32)
	assert.Assert(t, err)
	return uint32(n)
}

func dbFor(name string, databases uint32) int {
	h := fnv.New32()
	_, _ = h.Write([]byte(name))
	return int(h.Sum32() % databases)
}
