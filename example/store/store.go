// Package store is the redis backed key value store behind the kv API.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/spantrap/harness/o11y"
)

// ErrNotFound is a warning so a miss does not light up the whole trace red.
var ErrNotFound = o11y.NewWarning("key not found")

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Set stores value under key. A zero ttl means the key does not expire.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) (err error) {
	ctx, span := o11y.StartSpan(ctx, "store: set")
	defer o11y.End(span, &err)
	span.AddField("key", key)
	span.AddField("ttl", ttl)

	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Get(ctx context.Context, key string) (value string, err error) {
	ctx, span := o11y.StartSpan(ctx, "store: get")
	defer o11y.End(span, &err)
	span.AddField("key", key)

	value, err = s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	ctx, span := o11y.StartSpan(ctx, "store: delete")
	defer o11y.End(span, &err)
	span.AddField("key", key)

	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}
