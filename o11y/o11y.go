// Package o11y defines the observability API the rest of this repo codes
// against, a thin tracing and metrics abstraction with a real honeycomb
// backed implementation and a noop default.
package o11y

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rollbar/rollbar-go"
)

type Provider interface {
	// AddGlobalField makes key=val appear on every span the application
	// sends, for things like version, service and k8s_replicaset.
	AddGlobalField(key string, val interface{})

	// StartSpan opens a span for a unit of work. name should be short and
	// human readable, with enough detail to tell similar spans apart, such
	// as the URL or query name.
	//
	// The caller must end the span, normally with a defer:
	//
	//   ctx, span := o11y.StartSpan(ctx, "store: get key")
	//   defer span.End()
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// GetSpan returns the active span in ctx, or nil when there is none.
	GetSpan(ctx context.Context) Span

	// AddField attaches application level data to the active span. The key
	// lands with an "app." prefix.
	AddField(ctx context.Context, key string, val interface{})

	// AddFieldToTrace attaches data to the root span, where it propagates
	// onto every current and future child span. Used for trace wide facts
	// like service name, project id or run id.
	AddFieldToTrace(ctx context.Context, key string, val interface{})

	// Log emits a one off event that is not part of any span.
	Log(ctx context.Context, name string, fields ...Pair)

	Close(ctx context.Context)

	// MetricsProvider exposes the raw metrics backend for callers that
	// need to emit metrics without a span.
	MetricsProvider() MetricsProvider

	// Helpers returns the trace propagation functions for crossing process
	// boundaries.
	Helpers() Helpers
}

// PropagationContext carries trace context between services. The Parent
// value normally also appears in the Headers map. The duplication keeps the
// header name of the trace parent private to providers, so nothing outside
// can come to depend on it.
type PropagationContext struct {
	// Parent is the serialised trace parent fields on their own.
	Parent string
	// Headers holds every propagation header.
	Headers http.Header
}

// PropagationContextFromHeader wraps h for InjectPropagation. The headers
// are passed through as is, not filtered down to the propagation ones.
func PropagationContextFromHeader(h http.Header) PropagationContext {
	return PropagationContext{
		Headers: h,
	}
}

type Helpers interface {
	// ExtractPropagation reads the propagation fields of the span in ctx,
	// ready to be sent across a process boundary.
	ExtractPropagation(ctx context.Context) PropagationContext

	// InjectPropagation starts a root span joined onto the trace the
	// propagation fields describe, returning the context carrying it.
	InjectPropagation(context.Context, PropagationContext) (context.Context, Span)

	// TraceIDs exposes the current trace and parent ids, mostly so tests
	// can follow a trace across services.
	TraceIDs(ctx context.Context) (traceID, parentID string)
}

type Span interface {
	// AddField attaches application level data to the span. The key lands
	// with an "app." prefix.
	AddField(key string, val interface{})

	// AddRawField attaches data to the span with no prefix, for library
	// and plumbing code emitting common fields such as result,
	// http.status_code or db.system. Application code should normally use
	// AddField to stay out of that namespace.
	//
	// The opentelemetry semantic conventions are a good source of names:
	// https://github.com/open-telemetry/opentelemetry-specification/tree/7ae3d066c95c716ef3086228ef955d84ba03ac88/specification/trace/semantic_conventions
	AddRawField(key string, val interface{})

	// RecordMetric arranges for metric to be emitted when the span ends.
	RecordMetric(metric Metric)

	// SerializeHeaders renders the span's propagation information into a
	// header friendly string.
	SerializeHeaders() string

	// End closes the span, fixing its duration and handing it to the
	// provider for processing. The span must not be used afterwards.
	End()
}

// Pair is a key value pair used to add metadata to a span.
type Pair struct {
	Key   string
	Value interface{}
}

// Field returns a new metadata pair.
func Field(key string, value interface{}) Pair {
	return Pair{Key: key, Value: value}
}

type MetricType string

const (
	MetricTimer = "timer"
	MetricGauge = "gauge"
	MetricCount = "count"
)

// Metric describes a metric to derive from a span when it ends.
type Metric struct {
	Type MetricType
	// Name the metric will be published under.
	Name string
	// Field is the span field the metric value is read from.
	Field string
	// FixedTag is an optional tag fixed when the Metric is declared.
	FixedTag *Tag
	// TagFields names span fields to turn into metric tags.
	TagFields []string
}

// Tag is a fixed name value pair attached to a metric.
type Tag struct {
	Name  string
	Value interface{}
}

func NewTag(name string, value interface{}) *Tag {
	return &Tag{Name: name, Value: value}
}

// Timing records the span's own duration as a timer metric.
func Timing(name string, fields ...string) Metric {
	return Metric{Type: MetricTimer, Name: name, Field: "duration_ms", TagFields: fields}
}

// Duration records a timer metric from the named span field.
func Duration(name string, valueField string, fields ...string) Metric {
	return Metric{Type: MetricTimer, Name: name, Field: valueField, TagFields: fields}
}

// Incr counts one occurrence each time the span ends.
func Incr(name string, fields ...string) Metric {
	return Metric{Type: MetricCount, Name: name, TagFields: fields}
}

// Gauge publishes the named span field as a gauge.
func Gauge(name string, valueField string, tagFields ...string) Metric {
	return Metric{
		Type:      MetricGauge,
		Name:      name,
		Field:     valueField,
		TagFields: tagFields,
	}
}

// Count adds the named span field to a counter, with an optional fixed tag.
func Count(name string, valueField string, fixedTag *Tag, tagFields ...string) Metric {
	return Metric{
		Type:      MetricCount,
		Name:      name,
		Field:     valueField,
		FixedTag:  fixedTag,
		TagFields: tagFields,
	}
}

type MetricsProvider interface {
	// Histogram aggregates values agent side over a period, like
	// TimeInMilliseconds but not limited to timings.
	Histogram(name string, value float64, tags []string, rate float64) error
	// TimeInMilliseconds records timing data, such as the length of a
	// network call.
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
	// Gauge records the value of something at a point in time.
	Gauge(name string, value float64, tags []string, rate float64) error
	// Count records an individual occurrence count.
	Count(name string, value int64, tags []string, rate float64) error
}

type ClosableMetricsProvider interface {
	MetricsProvider
	io.Closer
}

type providerKey struct{}

// WithProvider returns a child context carrying p, retrievable with
// FromContext.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the provider in ctx, falling back to the noop
// provider so callers never need a nil check.
func FromContext(ctx context.Context) Provider {
	provider, ok := ctx.Value(providerKey{}).(Provider)
	if !ok {
		return defaultProvider
	}
	return provider
}

// Log emits a one off event through the provider on ctx.
func Log(ctx context.Context, name string, fields ...Pair) {
	FromContext(ctx).Log(ctx, name, fields...)
}

// LogError sends a zero duration trace event carrying err.
func LogError(ctx context.Context, name string, err error, fields ...Pair) {
	_, span := StartSpan(ctx, name)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	AddResultToSpan(span, err)
	span.End()
}

// StartSpan starts a span via the provider in ctx. Without a provider in
// the context this does nothing.
func StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return FromContext(ctx).StartSpan(ctx, name)
}

// AddField adds a field to the currently active span.
func AddField(ctx context.Context, key string, val interface{}) {
	FromContext(ctx).AddField(ctx, key, val)
}

// AddFieldToTrace adds a field to the root span, propagating to all of its
// current and future children.
func AddFieldToTrace(ctx context.Context, key string, val interface{}) {
	FromContext(ctx).AddFieldToTrace(ctx, key, val)
}

// SetSpanSampledIn marks the active span so trace sampling always keeps it.
func SetSpanSampledIn(ctx context.Context) {
	span := FromContext(ctx).GetSpan(ctx)
	if span == nil {
		return
	}
	span.AddRawField("meta.keep.span", true)
}

// End completes the span, first recording *err into its error and result
// fields.
//
// Capture the returned error like this:
//
//	defer o11y.End(span, &err)
//
// The pointer to the error interface matters. Deferring End on the line
// after StartSpan captures the address of the named return value, later
// assignments land in the pointed-to error, and the dereference inside End
// sees whatever was last assigned.
func End(span Span, err *error) {
	var final error
	if err != nil {
		final = *err
	}
	AddResultToSpan(span, final)
	span.End()
}

// AddResultToSpan sets the span's result field from a possibly nil err,
// along with the error or warning detail.
func AddResultToSpan(span Span, err error) {
	switch {
	case IsWarning(err):
		span.AddRawField("warning", err.Error())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// cancellation and timeouts happen in normal shutdown and timeout
		// handling, recording them as errors would drown out real ones
		span.AddRawField("result", "canceled")
		span.AddRawField("warning", err.Error())
		return
	case err != nil:
		span.AddRawField("result", "error")
		span.AddRawField("error", err.Error())
		return
	}
	span.AddRawField("result", "success")
}

type rollbarAble interface {
	RollBarClient() *rollbar.Client
}

// HandlePanic captures the panic in the span and sends it to rollbar when the
// provider has a rollbar client. It returns the panic wrapped as an error, so
// callers can hand it to their usual error path.
func HandlePanic(ctx context.Context, span Span, panic interface{}, r *http.Request) (err error) {
	err = fmt.Errorf("panic handled: %+v", panic)
	span.AddRawField("panic", panic)
	span.AddRawField("has_panicked", "true")
	span.AddRawField("stack", string(debug.Stack()))
	span.RecordMetric(Incr("panics", "name"))

	provider := FromContext(ctx)
	rollable, ok := provider.(rollbarAble)
	if !ok {
		return err
	}
	rollbarClient := rollable.RollBarClient()
	if r != nil {
		rollbarClient.RequestError(rollbar.CRIT, r, err)
	} else {
		rollbarClient.LogPanic(panic, true)
	}
	return err
}

var defaultProvider = &noopProvider{}

// noopProvider implements Provider, discarding everything.
type noopProvider struct{}

func (p *noopProvider) AddGlobalField(string, interface{}) {}

func (p *noopProvider) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, &noopSpan{}
}

func (p *noopProvider) GetSpan(context.Context) Span {
	return &noopSpan{}
}

func (p *noopProvider) AddField(context.Context, string, interface{}) {}

func (p *noopProvider) AddFieldToTrace(context.Context, string, interface{}) {}

func (p *noopProvider) Close(context.Context) {}

func (p *noopProvider) Log(context.Context, string, ...Pair) {}

func (p *noopProvider) MetricsProvider() MetricsProvider {
	return &statsd.NoOpClient{}
}

func (p *noopProvider) Helpers() Helpers {
	return noopHelpers{}
}

type noopHelpers struct{}

func (noopHelpers) ExtractPropagation(context.Context) PropagationContext {
	return PropagationContext{}
}

func (noopHelpers) InjectPropagation(ctx context.Context, _ PropagationContext) (context.Context, Span) {
	return ctx, &noopSpan{}
}

func (noopHelpers) TraceIDs(context.Context) (traceID, parentID string) {
	return "", ""
}

type noopSpan struct{}

func (s *noopSpan) AddField(string, interface{})    {}
func (s *noopSpan) AddRawField(string, interface{}) {}
func (s *noopSpan) RecordMetric(Metric)             {}
func (s *noopSpan) SerializeHeaders() string        { return "" }
func (s *noopSpan) End()                            {}
