// Package httpmetrics is a metrics provider that batches metrics in
// memory and ships them to an HTTP collector. It is an alternative to
// statsd for environments with no UDP egress.
package httpmetrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spantrap/harness/config/secret"
	"github.com/spantrap/harness/httpclient"
)

type Config struct {
	// URL is the full collector endpoint batches are PUT to, in the form
	// http[s]://host[:port]/path.
	URL string
	// AuthToken is sent as a bearer token on every publish.
	AuthToken secret.String
	// GlobalTags are attached to every batch. Beware high cardinality values.
	GlobalTags Tags
	// ClientName names the publishing http client in spans, the default
	// is "http-metrics-client".
	ClientName string
	// PublishInterval is how often the batch is shipped, defaulting to
	// one minute.
	PublishInterval time.Duration
	// Namespace is prepended to every metric name.
	Namespace string
}

type Tags map[string]string

// Provider implements o11y.ClosableMetricsProvider on top of an HTTP
// collector. Metrics are batched in memory and published on an interval,
// and a failed publish keeps the batch for the next attempt.
type Provider struct {
	client          *httpclient.Client
	namespace       string
	globalTags      []string
	publishInterval time.Duration

	mu   sync.Mutex
	data []metric

	stopMu sync.Mutex
	stop   chan struct{}
}

type metric struct {
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	Value     float64  `json:"value"`
	Tags      []string `json:"tags"`
	Timestamp int64    `json:"timestamp"`
}

const publishTimeout = 10 * time.Second

// New creates a Provider and starts its publish loop. Close stops the
// loop and flushes whatever is still batched.
func New(cfg Config) *Provider {
	p := newProvider(cfg)
	p.start()
	return p
}

func newProvider(cfg Config) *Provider {
	if cfg.ClientName == "" {
		cfg.ClientName = "http-metrics-client"
	}
	if cfg.PublishInterval == 0 {
		cfg.PublishInterval = time.Minute
	}
	tags := make([]string, 0, len(cfg.GlobalTags))
	for k, v := range cfg.GlobalTags {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}
	return &Provider{
		namespace:       cfg.Namespace,
		globalTags:      tags,
		publishInterval: cfg.PublishInterval,
		data:            []metric{},
		client: httpclient.New(httpclient.Config{
			Name:       cfg.ClientName,
			BaseURL:    cfg.URL,
			AuthToken:  cfg.AuthToken.Raw(),
			AcceptType: httpclient.JSON,
			Timeout:    publishTimeout,
		}),
	}
}

// Gauge records the value of something as it was at the time of the call.
func (p *Provider) Gauge(name string, value float64, tags []string, _ float64) error {
	p.record("gauge", name, value, tags)
	return nil
}

// Histogram records a value in a distribution, timings or otherwise.
func (p *Provider) Histogram(name string, value float64, tags []string, _ float64) error {
	p.record("histogram", name, value, tags)
	return nil
}

// TimeInMilliseconds records timing data.
func (p *Provider) TimeInMilliseconds(name string, value float64, tags []string, _ float64) error {
	p.record("timeInMilliseconds", name, value, tags)
	return nil
}

// Count records individual occurrences of an event.
func (p *Provider) Count(name string, value int64, tags []string, _ float64) error {
	p.record("count", name, float64(value), tags)
	return nil
}

func (p *Provider) record(metricType, name string, value float64, tags []string) {
	if p.namespace != "" {
		name = p.namespace + "." + name
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = append(p.data, metric{
		Type:      metricType,
		Name:      name,
		Value:     value,
		Tags:      tags,
		Timestamp: time.Now().Unix(),
	})
}

// Close stops the publish loop and flushes anything still batched.
// It is safe to call more than once.
func (p *Provider) Close() error {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	if p.stop == nil {
		return nil
	}
	close(p.stop)
	p.stop = nil

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	p.Publish(ctx)
	return nil
}

func (p *Provider) start() {
	p.stop = make(chan struct{})
	stop := p.stop

	go func() {
		ticker := time.NewTicker(p.publishInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			p.Publish(context.Background())
		}
	}()
}

// Publish ships the current batch to the collector. If the collector
// rejects it the batch is merged back in front of anything recorded in
// the meantime, to be retried on the next interval.
func (p *Provider) Publish(ctx context.Context) {
	p.mu.Lock()
	batch := p.data
	p.data = []metric{}
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	req := httpclient.NewRequest("PUT", "", time.Second)
	req.Body = struct {
		Data []metric `json:"metrics"`
		Tags []string `json:"tags"`
	}{Data: batch, Tags: p.globalTags}

	err := p.client.Call(ctx, req)
	if err != nil {
		p.mu.Lock()
		p.data = append(batch, p.data...)
		p.mu.Unlock()
	}
}
