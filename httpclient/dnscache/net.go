package dnscache

import (
	"context"
	"math/rand"
	"net"
	"time"
)

// DialFunc matches the signature of http.Transport.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext returns a dial function that resolves through resolver and
// tries the answers in random order. A nil baseDial gets a dialer with the
// usual 30 second timeouts.
func DialContext(resolver *Resolver, baseDial DialFunc) DialFunc {
	if baseDial == nil {
		d := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		baseDial = d.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		ips, err := resolver.Resolve(ctx, host)
		if err != nil {
			return nil, err
		}

		var firstErr error
		for _, i := range rand.Perm(len(ips)) {
			conn, err := baseDial(ctx, network, net.JoinHostPort(ips[i].String(), port))
			if err == nil {
				return conn, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		return nil, firstErr
	}
}
