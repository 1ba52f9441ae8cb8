package redis

import (
	"context"
	"crypto/x509"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/spantrap/harness/config/secret"
)

type ClusterOptions struct {
	// Name is used in metrics and health checks, default is "redis".
	Name string

	// Addrs is the seed list of host:port cluster node addresses.
	Addrs []string

	// MaxRedirects caps retries of commands that hit network errors or
	// MOVED/ASK redirects. Default is 3.
	MaxRedirects int

	// ReadOnly enables read-only commands on slave nodes.
	ReadOnly bool
	// RouteByLatency sends read-only commands to the closest node.
	// Implies ReadOnly.
	RouteByLatency bool
	// RouteRandomly sends read-only commands to a random node.
	// Implies ReadOnly.
	RouteRandomly bool

	// ClusterSlots optionally supplies the slot layout, for hand built
	// clusters of standalone servers.
	ClusterSlots func(context.Context) ([]redis.ClusterSlot, error)

	// User authenticates against the ACL list on Redis 6.0 or newer.
	User string
	// Password must match the server's requirepass value, or the User's
	// password when the ACL system is in use.
	Password secret.String

	// MaxRetries caps per command retries. Default is 3, -1 disables them.
	MaxRetries int
	// MinRetryBackoff is the shortest pause between retries.
	// Default is 8 milliseconds, -1 disables backoff.
	MinRetryBackoff time.Duration
	// MaxRetryBackoff is the longest pause between retries.
	// Default is 512 milliseconds, -1 disables backoff.
	MaxRetryBackoff time.Duration

	// DialTimeout bounds establishing new connections. Default is 5 seconds.
	DialTimeout time.Duration
	// ReadTimeout bounds socket reads, commands fail rather than block.
	// -1 for no timeout, 0 for the 3 second default.
	ReadTimeout time.Duration
	// WriteTimeout bounds socket writes. Default is ReadTimeout.
	WriteTimeout time.Duration

	// PoolFIFO selects a FIFO pool rather than the default LIFO one.
	// FIFO has slightly higher overhead.
	PoolFIFO bool
	// PoolSize caps socket connections.
	// Default is 10 per CPU reported by runtime.GOMAXPROCS.
	PoolSize int
	// MinIdleConns keeps spare connections open, useful when dialling
	// is slow.
	MinIdleConns int
	// MaxConnAge retires connections older than this.
	// Default keeps them forever.
	MaxConnAge time.Duration
	// PoolTimeout is how long to wait for a connection when the pool is
	// exhausted. Default is ReadTimeout + 1 second.
	PoolTimeout time.Duration
	// IdleTimeout closes idle connections, keep it below the server's own
	// timeout. Default is 5 minutes, -1 disables the check.
	IdleTimeout time.Duration

	TLS    bool
	CAFunc func() *x509.CertPool
}

// NewCluster only constructs the cluster client, closing it at the right
// time is the caller's problem. See LoadCluster for a managed lifecycle.
func NewCluster(o ClusterOptions) *redis.ClusterClient {
	return redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:          o.Addrs,
		MaxRedirects:   o.MaxRedirects,
		ReadOnly:       o.ReadOnly,
		RouteByLatency: o.RouteByLatency,
		RouteRandomly:  o.RouteRandomly,
		ClusterSlots:   o.ClusterSlots,

		Username: o.User,
		Password: o.Password.Raw(),

		MaxRetries:      o.MaxRetries,
		MinRetryBackoff: o.MinRetryBackoff,
		MaxRetryBackoff: o.MaxRetryBackoff,
		DialTimeout:     o.DialTimeout,
		ReadTimeout:     o.ReadTimeout,
		WriteTimeout:    o.WriteTimeout,
		PoolFIFO:        o.PoolFIFO,
		PoolSize:        o.PoolSize,
		MinIdleConns:    o.MinIdleConns,
		MaxConnAge:      o.MaxConnAge,
		PoolTimeout:     o.PoolTimeout,
		IdleTimeout:     o.IdleTimeout,

		TLSConfig: tlsConfig(o.TLS, o.CAFunc, ""),
	})
}
