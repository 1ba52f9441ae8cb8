package httpserver

import (
	"context"
	"fmt"

	"github.com/spantrap/harness/system"
)

// Load starts a server with New and registers it on sys, both the serve
// loop and the listener's connection gauges.
func Load(ctx context.Context, cfg Config, sys *system.System) (*HTTPServer, error) {
	server, err := New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error starting %q server: %w", cfg.Name, err)
	}

	sys.AddService(server.Serve)
	sys.AddMetrics(server.MetricsProducer())
	return server, nil
}
