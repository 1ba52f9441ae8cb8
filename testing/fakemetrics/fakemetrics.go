// Package fakemetrics provides an in memory metrics provider that records
// every call made to it, so tests can assert on the metrics a piece of code
// produced.
package fakemetrics

import (
	"fmt"
	"sync"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// MetricCall captures a single call to the provider. Metric holds the kind
// of call ("timer", "gauge", "count" or "histogram"), the other fields hold
// the arguments as given.
type MetricCall struct {
	Metric   string
	Name     string
	Value    float64
	ValueInt int64
	Tags     []string
	Rate     float64
}

// CMPMetrics compares slices of MetricCall ignoring ordering, and allowing
// values to differ by up to 10 so that timers on real work still match.
var CMPMetrics = gocmp.Options{
	cmpopts.EquateApprox(0, 10),
	cmpopts.SortSlices(func(x, y MetricCall) bool {
		return fmt.Sprintf("%s|%s|%s", x.Metric, x.Name, x.Tags) <
			fmt.Sprintf("%s|%s|%s", y.Metric, y.Name, y.Tags)
	}),
}

// Provider is a metrics provider that stores calls rather than sending
// them anywhere. It is safe for concurrent use.
type Provider struct {
	mu    sync.RWMutex
	calls []MetricCall
}

// Calls returns a copy of everything recorded so far.
func (f *Provider) Calls() []MetricCall {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return append(make([]MetricCall, 0, len(f.calls)), f.calls...)
}

// Reset discards the recorded calls, for tests that assert in stages.
func (f *Provider) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = nil
}

func (f *Provider) TimeInMilliseconds(name string, value float64, tags []string, rate float64) error {
	return f.record(MetricCall{
		Metric: "timer",
		Name:   name,
		Value:  value,
		Tags:   tags,
		Rate:   rate,
	})
}

func (f *Provider) Gauge(name string, value float64, tags []string, rate float64) error {
	return f.record(MetricCall{
		Metric: "gauge",
		Name:   name,
		Value:  value,
		Tags:   tags,
		Rate:   rate,
	})
}

func (f *Provider) Count(name string, value int64, tags []string, rate float64) error {
	return f.record(MetricCall{
		Metric:   "count",
		Name:     name,
		ValueInt: value,
		Tags:     tags,
		Rate:     rate,
	})
}

func (f *Provider) Histogram(name string, value float64, tags []string, rate float64) error {
	return f.record(MetricCall{
		Metric: "histogram",
		Name:   name,
		Value:  value,
		Tags:   tags,
		Rate:   rate,
	})
}

func (f *Provider) Close() error {
	return nil
}

func (f *Provider) record(c MetricCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c)
	return nil
}
