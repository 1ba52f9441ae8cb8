package system

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/termination"
)

// System runs the long lived parts of a service, one goroutine each, and
// brings them all down together when one fails or the process is signalled.
type System struct {
	group *errgroup.Group
	ctx   context.Context

	services        []func(context.Context) error
	healthChecks    []HealthChecker
	metricProducers []MetricProducer
	gaugeProducers  []GaugeProducer
	cleanups        []func(ctx context.Context) error
}

// HealthChecker is implemented by anything that wants to contribute to the
// service health endpoints.
type HealthChecker interface {
	// HealthChecks returns the name of the checked subsystem and a check for
	// each of readiness and liveness. Either check may be nil.
	HealthChecks() (name string, ready, live func(ctx context.Context) error)
}

// New returns a System whose services will stop when ctx is cancelled.
func New(ctx context.Context) *System {
	group, ctx := errgroup.WithContext(ctx)
	return &System{
		group: group,
		ctx:   ctx,
	}
}

var terminationTestHook = termination.Handle

// Run starts every added service plus the signal handler and blocks until
// the first of them returns. On a signal the services get delay to drain
// before their context is cancelled.
func (sys *System) Run(delay time.Duration) (err error) {
	_, runSpan := o11y.StartSpan(sys.ctx, "system: run")
	defer o11y.End(runSpan, &err)
	runSpan.RecordMetric(o11y.Timing("system.run", "result"))

	sys.group.Go(func() error {
		return terminationTestHook(sys.ctx, delay)
	})

	for _, f := range sys.services {
		f := f // the goroutines start after the loop has moved on
		sys.group.Go(func() error {
			return f(sys.ctx)
		})
	}

	if len(sys.metricProducers) > 0 || len(sys.gaugeProducers) > 0 {
		sys.group.Go(metricsReporter(sys.ctx, sys.metricProducers, sys.gaugeProducers))
	}

	return sys.group.Wait()
}

// AddService registers a long running func that Run will start. Services
// should block until their context is cancelled.
func (sys *System) AddService(s func(ctx context.Context) error) {
	sys.services = append(sys.services, s)
}

func (sys *System) AddHealthCheck(h HealthChecker) {
	sys.healthChecks = append(sys.healthChecks, h)
}

// AddMetrics registers a producer for the metrics loop to publish.
func (sys *System) AddMetrics(m MetricProducer) {
	sys.metricProducers = append(sys.metricProducers, m)
}

// AddGauges registers a producer of tagged gauges for the metrics loop.
func (sys *System) AddGauges(g GaugeProducer) {
	sys.gaugeProducers = append(sys.gaugeProducers, g)
}

// AddCleanup registers a func for Cleanup to call once Run has returned.
func (sys *System) AddCleanup(c func(ctx context.Context) error) {
	sys.cleanups = append(sys.cleanups, c)
}

func (sys *System) HealthChecks() []HealthChecker {
	return sys.healthChecks
}

// Cleanup runs the registered cleanups in the order they were added.
// Failures are logged rather than returned so every cleanup gets its turn.
func (sys *System) Cleanup(ctx context.Context) {
	for _, c := range sys.cleanups {
		err := c(ctx)
		if err != nil {
			o11y.Log(ctx, "system: cleanup error", o11y.Field("error", err))
		}
	}
}
