// Package honeycomb is the tracing backend behind the o11y provider API,
// built on honeycomb's beeline library.
package honeycomb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/honeycombio/beeline-go"
	"github.com/honeycombio/beeline-go/client"
	"github.com/honeycombio/beeline-go/propagation"
	"github.com/honeycombio/beeline-go/trace"
	"github.com/honeycombio/dynsampler-go"
	"github.com/honeycombio/libhoney-go"
	"github.com/honeycombio/libhoney-go/transmission"

	"github.com/spantrap/harness/o11y"
)

type Config struct {
	Host          string
	Dataset       string
	Key           string
	Format        string
	SendTraces    bool // set to really deliver traces to the honeycomb server
	Sender        transmission.Sender
	SampleTraces  bool
	SampleKeyFunc func(map[string]interface{}) string
	SampleRates   map[string]int
	Writer        io.Writer
	Metrics       o11y.ClosableMetricsProvider
	ServiceName   string

	// Dump, when set, additionally receives every sent span as one JSON line.
	// Services under test point this at the file named by their span dump
	// path so a harness can read the spans back. See testing/spandump for
	// the reader.
	Dump io.Writer

	Debug bool
}

func (c *Config) Validate() error {
	// the key is only needed for real sends with the default sender
	if c.SendTraces && c.Key == "" && c.Sender == nil {
		return errors.New("honeycomb_key key required for honeycomb")
	}
	return nil
}

// sender assembles the transmission.Sender for this config. Any combination
// of a real honeycomb sender, a local format writer and a span dump writer
// can be active at once.
func (c *Config) sender() transmission.Sender {
	writer := c.Writer
	if writer == nil {
		writer = os.Stderr
	}

	var senders []transmission.Sender

	if c.SendTraces {
		hcSender := c.Sender
		if hcSender == nil {
			hcSender = &transmission.Honeycomb{
				MaxBatchSize:         libhoney.DefaultMaxBatchSize,
				BatchTimeout:         libhoney.DefaultBatchTimeout,
				MaxConcurrentBatches: libhoney.DefaultMaxConcurrentBatches,
				PendingWorkCapacity:  libhoney.DefaultPendingWorkCapacity,
				UserAgentAddition:    c.ServiceName,
			}
		}
		senders = append(senders, hcSender)
	}

	switch c.Format {
	case "none":
	case "text":
		senders = append(senders, &TextSender{w: writer})
	default: // including "json"
		senders = append(senders, &transmission.WriterSender{W: writer})
	}

	if c.Dump != nil {
		senders = append(senders, &DumpSender{w: c.Dump})
	}

	return &MultiSender{Senders: senders}
}

const metricKey = "__MAGIC_METRIC_KEY__"

// New creates a honeycomb backed o11y provider. Traces are written to
// STDERR (or cfg.Writer) and optionally sent to a honeycomb server.
func New(conf Config) o11y.Provider {
	// beeline's own default constructor ignores this error, so do the same
	hc, _ := libhoney.NewClient(libhoney.ClientConfig{
		APIKey:       conf.Key,
		Dataset:      conf.Dataset,
		APIHost:      conf.Host,
		Transmission: conf.sender(),
	})

	bc := beeline.Config{
		Client:      hc,
		Debug:       conf.Debug,
		WriteKey:    conf.Key,
		ServiceName: conf.ServiceName,
	}

	if conf.SampleTraces {
		bc.SamplerHook = samplerHook(conf)
	}

	// without sampling the metrics have to come off the presend hook,
	// since the sampler hook never runs
	if bc.SamplerHook == nil {
		bc.PresendHook = sendSpanMetrics(conf.Metrics)
	}

	beeline.Init(bc)

	return &provider{
		metricsProvider: conf.Metrics,
	}
}

// samplerHook wires metric extraction in front of the sampling decision.
// Metrics must be sent here rather than in the presend hook, because a
// span dropped by the sampler never reaches presend.
func samplerHook(conf Config) func(map[string]interface{}) (bool, int) {
	if conf.SampleRates == nil {
		conf.SampleRates = map[string]int{}
	}
	sampler := &TraceSampler{
		KeyFunc: conf.SampleKeyFunc,
		Sampler: &dynsampler.Static{
			Default: 1,
			Rates:   conf.SampleRates,
		},
	}
	send := sendSpanMetrics(conf.Metrics)
	return func(fields map[string]interface{}) (bool, int) {
		send(fields)
		return sampler.Hook(fields)
	}
}

// sendSpanMetrics returns the hook that pulls the stashed metrics list off
// a span's fields and publishes each entry, resolving metric values and
// tags from the other span fields.
func sendSpanMetrics(mp o11y.MetricsProvider) func(map[string]interface{}) {
	if mp == nil {
		// nothing to send to, but the stash must never hit the wire
		return func(fields map[string]interface{}) {
			delete(fields, metricKey)
		}
	}

	return func(fields map[string]interface{}) {
		countStandardErrors(mp, fields)

		metrics, ok := fields[metricKey].([]o11y.Metric)
		if !ok {
			return
		}
		delete(fields, metricKey)
		for _, m := range metrics {
			tags := tagsFromFields(m.TagFields, fields)
			switch m.Type {
			case o11y.MetricTimer:
				sendTimer(mp, m, fields, tags)
			case o11y.MetricCount:
				sendCount(mp, m, fields, tags)
			case o11y.MetricGauge:
				sendGauge(mp, m, fields, tags)
			}
		}
	}
}

func sendTimer(mp o11y.MetricsProvider, m o11y.Metric, fields map[string]interface{}, tags []string) {
	val, ok := fieldValue(m.Field, fields)
	if !ok {
		return
	}
	ms, ok := asMilliseconds(val)
	if !ok {
		panic(m.Field + " can not be coerced to milliseconds")
	}
	_ = mp.TimeInMilliseconds(m.Name, ms, tags, 1)
}

func sendCount(mp o11y.MetricsProvider, m o11y.Metric, fields map[string]interface{}, tags []string) {
	var n int64 = 1
	if m.Field != "" {
		val, ok := fieldValue(m.Field, fields)
		if !ok {
			return
		}
		n, ok = asInt64(val)
		if !ok {
			panic(m.Field + " can not be coerced to int")
		}
	}
	if m.FixedTag != nil {
		tags = append(tags, formatTag(m.FixedTag.Name, m.FixedTag.Value))
	}
	_ = mp.Count(m.Name, n, tags, 1)
}

func sendGauge(mp o11y.MetricsProvider, m o11y.Metric, fields map[string]interface{}, tags []string) {
	val, ok := fieldValue(m.Field, fields)
	if !ok {
		return
	}
	f, ok := asFloat64(val)
	if !ok {
		panic(m.Field + " can not be coerced to float")
	}
	_ = mp.Gauge(m.Name, f, tags, 1)
}

// countStandardErrors publishes the always-on error, warning and failure
// counts so alerting does not depend on every span declaring its own
// metrics.
func countStandardErrors(mp o11y.MetricsProvider, fields map[string]interface{}) {
	if class := classifyFailure(fields); class != "" {
		_ = mp.Count("failure", 1, []string{formatTag("class", class)}, 1)
	}
	tag := []string{formatTag("type", "o11y")}
	if _, ok := fields["error"]; ok {
		_ = mp.Count("error", 1, tag, 1)
	}
	if _, ok := fields["warning"]; ok {
		_ = mp.Count("warning", 1, tag, 1)
	}
}

// classifyFailure looks for a field suffixed with _error and copies the
// prefix into a failure field, unless one exists already. The _error field
// itself is kept since it carries the detail. The failure class found is
// returned.
func classifyFailure(fields map[string]interface{}) string {
	if _, ok := fields["failure"]; ok {
		return ""
	}
	for k := range fields {
		class := strings.TrimSuffix(k, "_error")
		if class != k {
			fields["failure"] = class
			return class
		}
	}
	return ""
}

func tagsFromFields(tags []string, fields map[string]interface{}) []string {
	result := make([]string, 0, len(tags))
	for _, name := range tags {
		if val, ok := fieldValue(name, fields); ok {
			result = append(result, formatTag(name, val))
		}
	}
	return result
}

// fieldValue resolves name against the span fields, accepting honeycomb's
// app. prefixed form as well.
func fieldValue(name string, fields map[string]interface{}) (interface{}, bool) {
	val, ok := fields[name]
	if !ok {
		val, ok = fields["app."+name]
	}
	return val, ok
}

func asInt64(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func asFloat64(val interface{}) (float64, bool) {
	if f, ok := val.(float64); ok {
		return f, true
	}
	if i, ok := asInt64(val); ok {
		return float64(i), true
	}
	return 0, false
}

func asMilliseconds(val interface{}) (float64, bool) {
	if f, ok := asFloat64(val); ok {
		return f, true
	}
	switch d := val.(type) {
	case time.Duration:
		return float64(d.Milliseconds()), true
	case *time.Duration:
		return float64(d.Milliseconds()), true
	}
	return 0, false
}

func formatTag(name string, val interface{}) string {
	return fmt.Sprintf("%s:%v", name, val)
}

type provider struct {
	metricsProvider o11y.ClosableMetricsProvider
}

func (p *provider) AddGlobalField(key string, val interface{}) {
	mustValidateKey(key)
	client.AddField(key, val)
}

func (p *provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	current := trace.GetSpanFromContext(ctx)
	var s *trace.Span
	if current != nil {
		ctx, s = current.CreateAsyncChild(ctx)
	} else {
		// no active trace, start one and hand back its root span rather
		// than a child of the nearly empty root
		ctx, _ = trace.NewTrace(ctx, nil)
		s = trace.GetSpanFromContext(ctx)
	}
	s.AddField("name", name)

	return ctx, WrapSpan(s)
}

func (p *provider) GetSpan(ctx context.Context) o11y.Span {
	return WrapSpan(trace.GetSpanFromContext(ctx))
}

func (p *provider) AddField(ctx context.Context, key string, val interface{}) {
	mustValidateKey(key)
	beeline.AddField(ctx, key, val)
}

func (p *provider) AddFieldToTrace(ctx context.Context, key string, val interface{}) {
	mustValidateKey(key)
	beeline.AddFieldToTrace(ctx, key, val)
}

func (p *provider) Log(ctx context.Context, name string, fields ...o11y.Pair) {
	_, s := beeline.StartSpan(ctx, name)
	sp := WrapSpan(s)
	for _, field := range fields {
		sp.AddField(field.Key, field.Value)
	}
	sp.End()
}

func (p *provider) Close(_ context.Context) {
	beeline.Close()
	if p.metricsProvider != nil {
		_ = p.metricsProvider.Close()
	}
}

func (p *provider) MetricsProvider() o11y.MetricsProvider {
	return p.metricsProvider
}

func (p *provider) Helpers() o11y.Helpers {
	return helpers{}
}

type helpers struct{}

func (h helpers) ExtractPropagation(ctx context.Context) o11y.PropagationContext {
	sp := trace.GetSpanFromContext(ctx)
	if sp == nil {
		return o11y.PropagationContext{}
	}
	serialized := sp.SerializeHeaders()
	return o11y.PropagationContext{
		Parent: serialized,
		Headers: http.Header{
			propagation.TracePropagationHTTPHeader: []string{serialized},
		},
	}
}

func (h helpers) InjectPropagation(ctx context.Context, p o11y.PropagationContext) (context.Context, o11y.Span) {
	serialized := p.Parent
	if serialized == "" {
		serialized = p.Headers.Get(propagation.TracePropagationHTTPHeader)
	}

	var prop *propagation.PropagationContext
	if serialized != "" {
		prop, _ = propagation.UnmarshalHoneycombTraceContext(serialized)
	}

	ctx, tr := trace.NewTrace(ctx, prop)
	return ctx, WrapSpan(tr.GetRootSpan())
}

func (h helpers) TraceIDs(ctx context.Context) (traceID, parentID string) {
	t := trace.GetTraceFromContext(ctx)
	if t == nil {
		return "", ""
	}
	return t.GetTraceID(), t.GetParentID()
}

// WrapSpan adapts a raw beeline span to the o11y.Span interface.
func WrapSpan(s *trace.Span) o11y.Span {
	if s == nil {
		return nil
	}
	return &span{span: s}
}

type span struct {
	span    *trace.Span
	metrics []o11y.Metric
}

// AddField adds the field under honeycomb's app. namespace.
func (s *span) AddField(key string, val interface{}) {
	s.AddRawField("app."+key, val)
}

func (s *span) AddRawField(key string, val interface{}) {
	mustValidateKey(key)
	if err, ok := val.(error); ok {
		val = err.Error()
	}
	s.span.AddField(key, val)
}

func (s *span) RecordMetric(metric o11y.Metric) {
	s.metrics = append(s.metrics, metric)
	// stashed as a span field so the send hooks can fish the list out
	s.span.AddField(metricKey, s.metrics)
}

func (s *span) SerializeHeaders() string {
	return s.span.SerializeHeaders()
}

func (s *span) End() {
	s.span.Send()
}

// mustValidateKey guards against dashes sneaking into field names, which
// make the fields awkward to query.
func mustValidateKey(key string) {
	if strings.Contains(key, "-") {
		panic(fmt.Errorf("key %q cannot contain '-'", key))
	}
}
