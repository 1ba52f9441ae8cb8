// Package o11y assembles the observability provider for a service from its
// deployment configuration, covering tracing, metrics and error reporting.
package o11y

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rollbar/rollbar-go"

	"github.com/spantrap/harness/config/secret"
	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/o11y/honeycomb"
	"github.com/spantrap/harness/o11y/httpmetrics"
)

type Config struct {
	Statsd string
	// MetricsHTTPURL sends metrics to an HTTP collector instead of statsd.
	// Statsd is ignored when this is set.
	MetricsHTTPURL   string
	MetricsHTTPToken secret.String

	RollbarToken      secret.String
	RollbarEnv        string
	RollbarServerRoot string
	HoneycombEnabled  bool
	HoneycombDataset  string
	HoneycombKey      secret.String
	SampleTraces      bool
	SampleKeyFunc     func(map[string]interface{}) string
	SampleRates       map[string]int
	Format            string
	Version           string
	Service           string
	StatsNamespace    string

	// SpanDump names a file every sent span is appended to as one JSON
	// line. Services normally populate it from the O11Y_SPAN_DUMP env var
	// a supervising harness sets. Empty means no dump file.
	SpanDump string

	// Optional
	Mode                    string
	Debug                   bool
	RollbarDisabled         bool
	StatsdTelemetryDisabled bool
}

// Setup builds the provider described by o and stores it on the returned
// context. The returned cleanup flushes and closes the provider, call it
// before the process exits.
func Setup(ctx context.Context, o Config) (context.Context, func(context.Context), error) {
	honeyConfig, err := honeycombConfig(o)
	if err != nil {
		return nil, nil, err
	}

	var dump *os.File
	if o.SpanDump != "" {
		dump, err = os.OpenFile(o.SpanDump, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open span dump file: %w", err)
		}
		honeyConfig.Dump = dump
	}

	hostname, _ := os.Hostname()

	honeyConfig.Metrics, err = metricsFor(o, hostname)
	if err != nil {
		return nil, nil, err
	}

	provider := honeycomb.New(honeyConfig)
	provider.AddGlobalField("service", o.Service)
	provider.AddGlobalField("version", o.Version)
	if o.Mode != "" {
		provider.AddGlobalField("mode", o.Mode)
	}

	if o.RollbarToken != "" {
		client := rollbar.NewAsync(o.RollbarToken.Raw(), o.RollbarEnv, o.Version, hostname, o.RollbarServerRoot)
		client.SetEnabled(!o.RollbarDisabled)
		client.Message(rollbar.INFO, "Deployment")
		provider = rollbarProvider{
			Provider:      provider,
			rollbarClient: client,
		}
	}

	ctx = o11y.WithProvider(ctx, provider)

	cleanup := func(ctx context.Context) {
		provider.Close(ctx)
		if dump != nil {
			_ = dump.Close()
		}
	}
	return ctx, cleanup, nil
}

// metricsFor picks the metrics backend, preferring the HTTP collector, then
// statsd, then a no-op when neither is configured.
func metricsFor(o Config, hostname string) (o11y.ClosableMetricsProvider, error) {
	switch {
	case o.MetricsHTTPURL != "":
		tags := httpmetrics.Tags{
			"service":  o.Service,
			"version":  o.Version,
			"hostname": hostname,
		}
		if o.Mode != "" {
			tags["mode"] = o.Mode
		}
		return httpmetrics.New(httpmetrics.Config{
			URL:        o.MetricsHTTPURL,
			AuthToken:  o.MetricsHTTPToken,
			GlobalTags: tags,
			ClientName: o.Service + "-metrics",
			Namespace:  strings.TrimSuffix(o.StatsNamespace, "."),
		}), nil

	case o.Statsd != "":
		tags := []string{
			"service:" + o.Service,
			"version:" + o.Version,
			"hostname:" + hostname,
		}
		if o.Mode != "" {
			tags = append(tags, "mode:"+o.Mode)
		}
		opts := []statsd.Option{
			statsd.WithNamespace(o.StatsNamespace),
			statsd.WithTags(tags),
		}
		if o.StatsdTelemetryDisabled {
			opts = append(opts, statsd.WithoutTelemetry())
		}
		return statsd.New(o.Statsd, opts...)

	default:
		return &statsd.NoOpClient{}, nil
	}
}

type rollbarProvider struct {
	o11y.Provider
	rollbarClient *rollbar.Client
}

func (p rollbarProvider) Close(ctx context.Context) {
	p.Provider.Close(ctx)
	_ = p.rollbarClient.Close()
}

func (p rollbarProvider) RollBarClient() *rollbar.Client {
	return p.rollbarClient
}

func honeycombConfig(o Config) (honeycomb.Config, error) {
	if o.SampleKeyFunc == nil {
		// The default key suits the gin middleware's span fields.
		o.SampleKeyFunc = func(fields map[string]interface{}) string {
			return fmt.Sprintf("%s %s %v",
				fields["http.server_name"],
				fields["http.route"],
				fields["http.status_code"],
			)
		}
	}

	conf := honeycomb.Config{
		Host:          "",
		Dataset:       o.HoneycombDataset,
		Key:           o.HoneycombKey.Raw(),
		Format:        o.Format,
		SendTraces:    o.HoneycombEnabled,
		SampleTraces:  o.SampleTraces,
		SampleKeyFunc: o.SampleKeyFunc,
		SampleRates:   o.SampleRates,
		ServiceName:   o.Service,
		Debug:         o.Debug,
	}
	return conf, conf.Validate()
}
