package o11y

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"

	"github.com/spantrap/harness/config/secret"
	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/o11y/honeycomb"
	"github.com/spantrap/harness/testing/fakemetricrec"
	"github.com/spantrap/harness/testing/testcontext"
)

func TestO11Y_SecretRedacted(t *testing.T) {
	// The honeycomb sender marshals fields with encoding/json, so the
	// redacted form is what reaches the wire.
	buf := bytes.Buffer{}
	provider := honeycomb.New(honeycomb.Config{
		Writer: &buf,
	})
	ctx := context.Background()
	ctx, span := provider.StartSpan(ctx, "secret test")
	s := secret.String("super-secret")
	span.AddField("secret", s)
	span.End()
	provider.Close(ctx)
	assert.Check(t, !strings.Contains(buf.String(), "super-secret"), buf.String())
	assert.Check(t, cmp.Contains(buf.String(), "REDACTED"))
}

func TestSetup_DoesNotError(t *testing.T) {
	ctx := context.Background()
	ctx, cleanup, err := Setup(ctx, Config{
		Statsd:            "127.0.0.1:8125",
		RollbarToken:      "qwertyuiop",
		RollbarDisabled:   true,
		RollbarEnv:        "production",
		RollbarServerRoot: "github.com/spantrap/harness",
		HoneycombEnabled:  false,
		HoneycombDataset:  "does-not-exist",
		HoneycombKey:      "1234567890",
		SampleTraces:      false,
		Format:            "text",
		Version:           "1.2.3",
		Service:           "test-service",
		StatsNamespace:    "test.service",
		Mode:              "banana",
		Debug:             true,
	})
	assert.Assert(t, err)
	cleanup(ctx)
}

func TestSetup_MetricsHTTP(t *testing.T) {
	ctx := testcontext.Background()
	rec := fakemetricrec.New(ctx)
	t.Cleanup(rec.Close)

	ctx, cleanup, err := Setup(ctx, Config{
		MetricsHTTPURL:   rec.URL + "/metrics",
		MetricsHTTPToken: "qwertyuiop",
		HoneycombDataset: "does-not-exist",
		HoneycombKey:     "1234567890",
		Format:           "none",
		Version:          "1.2.3",
		Service:          "test-service",
		StatsNamespace:   "test.service",
	})
	assert.Assert(t, err)

	mp := o11y.FromContext(ctx).MetricsProvider()
	assert.NilError(t, mp.Gauge("keys", 3, nil, 1))

	// closing the provider flushes the batch to the collector
	cleanup(ctx)
	assert.Check(t, cmp.Equal(rec.Totals()["test.service.keys"], 3.0))
}

func TestSetup_SpanDump(t *testing.T) {
	dir := fs.NewDir(t, t.Name())
	defer dir.Remove()
	dumpFile := dir.Join("spans.jsonl")

	ctx := context.Background()
	ctx, cleanup, err := Setup(ctx, Config{
		Format:   "none",
		Version:  "1.2.3",
		Service:  "dump-service",
		SpanDump: dumpFile,
	})
	assert.Assert(t, err)

	_, span := o11y.StartSpan(ctx, "dumped span")
	span.AddField("key", "value")
	span.End()
	cleanup(ctx)

	f, err := os.Open(dumpFile)
	assert.Assert(t, err)
	defer f.Close()

	found := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rec := struct {
			Data map[string]interface{} `json:"data"`
		}{}
		assert.NilError(t, json.Unmarshal(scanner.Bytes(), &rec))
		if rec.Data["name"] == "dumped span" {
			found = true
			assert.Check(t, cmp.Equal(rec.Data["app.key"], "value"))
			assert.Check(t, cmp.Equal(rec.Data["service"], "dump-service"))
		}
	}
	assert.NilError(t, scanner.Err())
	assert.Check(t, found, "expected the span to be written to the dump file")
}
