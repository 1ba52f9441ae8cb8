package redis

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Metrics exposes the client's connection pool counters as gauges.
type Metrics struct {
	name   string
	client redis.UniversalClient
}

func NewMetrics(name string, client redis.UniversalClient) *Metrics {
	return &Metrics{
		name:   name,
		client: client,
	}
}

func (r *Metrics) MetricName() string {
	return r.name
}

func (r *Metrics) Gauges(_ context.Context) map[string]float64 {
	stats := r.client.PoolStats()
	return map[string]float64{
		"hits":     float64(stats.Hits),     // free connection found in the pool
		"misses":   float64(stats.Misses),   // no free connection in the pool
		"timeouts": float64(stats.Timeouts), // waits for a connection that timed out

		"total_connections": float64(stats.TotalConns),
		"idle_connections":  float64(stats.IdleConns),
		"stale_connections": float64(stats.StaleConns), // removed from the pool as stale
	}
}
