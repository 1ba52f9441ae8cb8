package healthcheck

import (
	"context"
	"fmt"

	"github.com/spantrap/harness/httpserver"
	"github.com/spantrap/harness/system"
)

// Load starts the admin API on addr, serving the health probes of everything
// registered on sys. Load it last so it sees every health checker loaded
// before it.
func Load(ctx context.Context, addr string, sys *system.System) (*httpserver.HTTPServer, error) {
	api, err := New(ctx, sys.HealthChecks())
	if err != nil {
		return nil, fmt.Errorf("error creating health check API: %w", err)
	}

	return httpserver.Load(ctx, httpserver.Config{
		Name:    "admin",
		Addr:    addr,
		Handler: api.Handler(),
	}, sys)
}
