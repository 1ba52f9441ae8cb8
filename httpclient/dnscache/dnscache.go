/*
Package dnscache caches DNS lookups in process, saving busy clients from
repeated resolver round trips.
*/
package dnscache

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/go-tinylfu"
)

const (
	defaultCacheSize = 64
	defaultTTL       = 5 * time.Second
)

type Resolver struct {
	config Config

	mu    sync.Mutex
	cache *tinylfu.T
}

type Config struct {
	// CacheSize is how many hosts to keep, default 64.
	CacheSize int
	// TTL is how long an answer stays fresh, default 5 seconds.
	TTL time.Duration

	// Resolver overrides the default net resolver.
	Resolver *net.Resolver

	// lookupFunc lets tests intercept lookups.
	lookupFunc func(ctx context.Context, r *net.Resolver, host string) ([]net.IP, error)
}

func (c *Config) applyDefaults() {
	if c.CacheSize == 0 {
		c.CacheSize = defaultCacheSize
	}
	if c.TTL == 0 {
		c.TTL = defaultTTL
	}
	if c.Resolver == nil {
		c.Resolver = net.DefaultResolver
	}
	if c.lookupFunc == nil {
		c.lookupFunc = lookupIP
	}
}

func New(c Config) *Resolver {
	c.applyDefaults()
	return &Resolver{
		config: c,
		cache:  tinylfu.New(c.CacheSize, 100000),
	}
}

// Resolve returns the IPs for host, from the cache when a fresh enough
// answer is there.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ips, ok := r.fromCache(host); ok {
		return ips, nil
	}

	ips, err := r.config.lookupFunc(ctx, r.config.Resolver, host)
	if err != nil {
		return nil, err
	}
	r.store(host, ips)
	return ips, nil
}

func (r *Resolver) fromCache(host string) ([]net.IP, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cache.Get(host)
	if !ok {
		return nil, false
	}
	return v.([]net.IP), true
}

func (r *Resolver) store(host string, ips []net.IP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Set(&tinylfu.Item{
		Key:      host,
		Value:    ips,
		ExpireAt: time.Now().Add(r.config.TTL),
	})
}

func lookupIP(ctx context.Context, r *net.Resolver, host string) ([]net.IP, error) {
	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}
