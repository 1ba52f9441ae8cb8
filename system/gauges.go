package system

import (
	"context"
	"fmt"
	"strings"

	"github.com/spantrap/harness/o11y"
)

// GaugeProducer is implemented by components whose gauge readings carry
// tags, so one key can report a value per tag set.
type GaugeProducer interface {
	// GaugeName is the name this group of gauges is published under.
	// It is not called Name since that is too likely to clash with a
	// field or method the implementation already has.
	GaugeName() string
	// Gauges are instantaneous name value pairs.
	Gauges(context.Context) map[string][]TaggedValue
}

// TaggedValue is a single gauge reading and the tags to report it with.
type TaggedValue struct {
	Val  float32
	Tags []string
}

// reportGauges publishes every tagged reading each producer returns,
// namespaced as gauge.<producer>.<key>.
func reportGauges(ctx context.Context, producers []GaugeProducer) {
	provider := o11y.FromContext(ctx).MetricsProvider()
	for _, p := range producers {
		name := strings.ReplaceAll(p.GaugeName(), "-", "_")
		for field, readings := range p.Gauges(ctx) {
			for _, r := range readings {
				_ = provider.Gauge(fmt.Sprintf("gauge.%s.%s", name, field), float64(r.Val), r.Tags, 1)
			}
		}
	}
}
