package o11y

// SpanKind is the role a Span plays in a Trace. The values mirror the otel
// span kinds.
type SpanKind int

const (
	SpanKindInternal SpanKind = 1
	SpanKindServer   SpanKind = 2
	SpanKindClient   SpanKind = 3
	SpanKindProducer SpanKind = 4
	SpanKindConsumer SpanKind = 5
)

type SpanConfig struct {
	Kind SpanKind
}

// SpanOpt configures a span at start time.
type SpanOpt func(SpanConfig) SpanConfig

// WithSpanKind marks the span being started with the given kind.
func WithSpanKind(kind SpanKind) SpanOpt {
	return func(cfg SpanConfig) SpanConfig {
		cfg.Kind = kind
		return cfg
	}
}
