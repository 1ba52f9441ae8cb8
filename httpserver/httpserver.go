package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spantrap/harness/o11y"
)

// HTTPServer serves cfg.Handler on a tracked listener, announcing the bound
// port on stdout so a supervising process can find it.
type HTTPServer struct {
	listener *trackedListener
	server   *http.Server
}

type Config struct {
	// Name is the name of the server in o11y and in the port announcement.
	Name string
	// Addr is the host:port to listen on. Use port 0 to let the kernel
	// pick, the bound port is announced and available from Port.
	Addr string
	// Handler is the HTTP handler to delegate requests to.
	Handler http.Handler

	// Network selects the listen network, any value net.Listen accepts
	// such as "tcp4" or "unix". Empty means "tcp".
	Network string
}

// announceTo is swapped in tests to capture the announcement.
var announceTo io.Writer = os.Stdout

// New binds the listener immediately, so the caller knows the address is
// good long before Serve is called.
func New(ctx context.Context, cfg Config) (s *HTTPServer, err error) {
	ctx, span := o11y.StartSpan(ctx, "httpserver: listen "+cfg.Name)
	defer o11y.End(span, &err)

	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	span.AddField("server_name", cfg.Name)
	span.AddField("address", cfg.Addr)
	span.AddField("network", cfg.Network)

	ln, err := net.Listen(cfg.Network, cfg.Addr)
	if err != nil {
		return nil, err
	}
	tracked := &trackedListener{
		Listener: ln,
		name:     cfg.Name,
	}

	// The bound address, which matters when cfg.Addr asked for port 0.
	span.AddField("address", tracked.Addr().String())
	span.AddField("result", "listening")

	if port := tracked.Port(); port > 0 {
		span.AddField("port", port)
		// The announcement is how a supervising process discovers the bound
		// port, so it always goes to stdout whatever the o11y format.
		fmt.Fprintf(announceTo, "%s: listening on port %d\n", cfg.Name, port)
	}

	return &HTTPServer{
		listener: tracked,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      cfg.Handler,
			ReadTimeout:  55 * time.Second,
			WriteTimeout: 55 * time.Second,
		},
	}, nil
}

// Serve runs the server until ctx is cancelled, then shuts it down with a
// grace period for requests still in flight.
func (s *HTTPServer) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.server.Serve(s.listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(sctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// MetricsProducer exposes the listener's connection gauges, for wiring into
// a system.System.
func (s *HTTPServer) MetricsProducer() MetricProducer {
	return s.listener
}

func (s HTTPServer) Addr() string {
	return s.listener.Addr().String()
}

// Port returns the bound TCP port, or 0 for non TCP networks.
func (s HTTPServer) Port() int {
	return s.listener.Port()
}
