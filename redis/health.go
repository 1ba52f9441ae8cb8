package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type HealthCheck struct {
	name   string
	client redis.UniversalClient
}

// NewHealthCheck reports readiness from a ping round trip. It takes the
// universal client interface so single node and cluster clients both work.
func NewHealthCheck(client redis.UniversalClient, name string) *HealthCheck {
	return &HealthCheck{name: name, client: client}
}

func (r *HealthCheck) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	name = r.name
	if name == "" {
		name = "redis"
	}
	return name, r.ping, nil
}

func (r *HealthCheck) ping(ctx context.Context) error {
	pong, err := r.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected response for redis ping: %q", pong)
	}
	return nil
}
