package system

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/worker"
)

// MetricProducer is implemented by components that expose point in time
// gauge readings.
type MetricProducer interface {
	// MetricName is the name this group of metrics is published under.
	// It is not called Name since that is too likely to clash with a
	// field or method the implementation already has.
	MetricName() string
	// Gauges are instantaneous name value pairs.
	Gauges(context.Context) map[string]float64
}

// reportMetrics publishes one gauge per entry each producer returns,
// namespaced as gauge.<producer>.<key>.
func reportMetrics(ctx context.Context, producers []MetricProducer) {
	provider := o11y.FromContext(ctx).MetricsProvider()
	for _, p := range producers {
		name := strings.ReplaceAll(p.MetricName(), "-", "_")
		for field, value := range p.Gauges(ctx) {
			_ = provider.Gauge(fmt.Sprintf("gauge.%s.%s", name, field), value, []string{}, 1)
		}
	}
}

// metricsReporter returns a func suitable for errgroup.Go that publishes
// the gauges of every registered producer every ten seconds until ctx is
// cancelled.
func metricsReporter(ctx context.Context, mps []MetricProducer, gps []GaugeProducer) func() error {
	return func() error {
		worker.Run(ctx, worker.Config{
			Name:          "metric-loop",
			MaxWorkTime:   time.Second,
			NoWorkBackOff: backoff.NewConstantBackOff(time.Second * 10),
			WorkFunc: func(ctx context.Context) error {
				reportMetrics(ctx, mps)
				reportGauges(ctx, gps)
				return worker.ErrShouldBackoff
			},
		})
		return nil
	}
}
