package redis

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/spantrap/harness/system"
)

// Load creates a Redis client wired into sys, with cleanup, a health check
// and connection pool gauges.
func Load(o Options, sys *system.System) *redis.Client {
	client := New(o)
	wire(client, o.Name, sys)
	return client
}

// LoadCluster is Load for a cluster client.
func LoadCluster(o ClusterOptions, sys *system.System) *redis.ClusterClient {
	client := NewCluster(o)
	wire(client, o.Name, sys)
	return client
}

func wire(client redis.UniversalClient, name string, sys *system.System) {
	sys.AddCleanup(func(_ context.Context) error {
		return client.Close()
	})

	if name == "" {
		name = "redis"
	}
	sys.AddHealthCheck(NewHealthCheck(client, name))
	sys.AddMetrics(NewMetrics(name, client))
}
