package redis

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/spantrap/harness/config/secret"
)

type Options struct {
	// Name is used in metrics and health checks, default is "redis".
	Name string

	Host     string
	Port     int
	User     string
	Password secret.String
	DB       int

	// Optional
	TLS    bool
	CAFunc func() *x509.CertPool
}

// New only constructs the client, closing it at the right time is the
// caller's problem. See Load for a managed lifecycle.
func New(o Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:      net.JoinHostPort(o.Host, strconv.Itoa(o.Port)),
		Username:  o.User,
		Password:  o.Password.Raw(),
		DB:        o.DB,
		TLSConfig: tlsConfig(o.TLS, o.CAFunc, o.Host),
	})
}

// tlsConfig returns nil when TLS is off, which the go-redis clients treat
// as plain TCP.
func tlsConfig(enabled bool, caFunc func() *x509.CertPool, serverName string) *tls.Config {
	if !enabled {
		return nil
	}
	var rootCAs *x509.CertPool
	if caFunc != nil {
		rootCAs = caFunc()
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
		RootCAs:    rootCAs,
	}
}
