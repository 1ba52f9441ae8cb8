package o11y

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestFromContext(t *testing.T) {
	t.Run("An empty context gets the default provider", func(t *testing.T) {
		p := FromContext(context.Background())
		assert.Check(t, cmp.Equal(p, defaultProvider))
	})

	t.Run("A stored provider comes back", func(t *testing.T) {
		want := &noopProvider{}
		ctx := WithProvider(context.Background(), want)
		assert.Check(t, cmp.Equal(FromContext(ctx), want))
	})
}

func TestLog_WithoutProvider(t *testing.T) {
	// Must not panic.
	Log(context.Background(), "started", Field("name", "value"))
}

func TestStartSpan_WithoutProvider(t *testing.T) {
	ctx := context.Background()

	nCtx, span := StartSpan(ctx, "op")
	assert.Check(t, span != nil, "should have returned a noop span")
	assert.Check(t, cmp.Equal(ctx, nCtx), "should have returned ctx unmodified")
}

func TestAddResultToSpan(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		result  string
		error   string
		warning string
	}{
		{
			name:   "success",
			result: "success",
		},
		{
			name:   "plain error",
			err:    errors.New("store unreachable"),
			result: "error",
			error:  "store unreachable",
		},
		{
			name:    "warning",
			err:     NewWarning("retry scheduled"),
			result:  "success",
			warning: "retry scheduled",
		},
		{
			name:    "wrapped warning",
			err:     fmt.Errorf("get: %w", NewWarning("retry scheduled")),
			result:  "success",
			warning: "get: retry scheduled",
		},
		{
			name:    "context canceled",
			err:     context.Canceled,
			result:  "canceled",
			warning: "context canceled",
		},
		{
			name:    "wrapped context canceled",
			err:     fmt.Errorf("get: %w", context.Canceled),
			result:  "canceled",
			warning: "get: context canceled",
		},
		{
			name:    "deadline exceeded",
			err:     context.DeadlineExceeded,
			result:  "canceled",
			warning: "context deadline exceeded",
		},
		{
			name:    "wrapped deadline exceeded",
			err:     fmt.Errorf("get: %w", context.DeadlineExceeded),
			result:  "canceled",
			warning: "get: context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span := newFakeSpan()
			AddResultToSpan(span, tt.err)
			assertField(t, span, "result", tt.result)
			assertField(t, span, "error", tt.error)
			assertField(t, span, "warning", tt.warning)
		})
	}
}

// assertField checks the field value on the span, or that the field is
// absent when want is empty.
func assertField(t *testing.T, span *fakeSpan, key, want string) {
	t.Helper()
	if want == "" {
		_, ok := span.fields[key]
		assert.Check(t, !ok, "field %q should be absent", key)
		return
	}
	got, _ := span.fields[key].(string)
	assert.Check(t, cmp.Equal(got, want))
}

func TestEnd(t *testing.T) {
	t.Run("With an error", func(t *testing.T) {
		span := newFakeSpan()
		err := errors.New("flush failed")
		End(span, &err)
		assert.Check(t, span.ended)
		assert.Check(t, cmp.Equal(span.fields["result"], "error"))
		assert.Check(t, cmp.Equal(span.fields["error"], "flush failed"))
	})

	t.Run("With a nil error", func(t *testing.T) {
		span := newFakeSpan()
		var err error
		End(span, &err)
		assert.Check(t, span.ended)
		assert.Check(t, cmp.Equal(span.fields["result"], "success"))
	})

	t.Run("With a nil error pointer", func(t *testing.T) {
		span := newFakeSpan()
		End(span, nil)
		assert.Check(t, span.ended)
		assert.Check(t, cmp.Equal(span.fields["result"], "success"))
	})
}

func TestSetSpanSampledIn(t *testing.T) {
	ctx := WithProvider(context.Background(), &fakeProvider{})
	ctx, span := StartSpan(ctx, "keep me")
	SetSpanSampledIn(ctx)

	fs, ok := span.(*fakeSpan)
	assert.Assert(t, ok)
	assert.Check(t, cmp.Equal(fs.fields["meta.keep.span"], true))
}

type fakeProvider struct {
	Provider
	span *fakeSpan
}

func (p *fakeProvider) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	p.span = newFakeSpan()
	return ctx, p.span
}

func (p *fakeProvider) GetSpan(ctx context.Context) Span {
	return p.span
}

type fakeSpan struct {
	Span
	fields map[string]interface{}
	ended  bool
}

func newFakeSpan() *fakeSpan {
	return &fakeSpan{fields: map[string]interface{}{}}
}

func (s *fakeSpan) AddRawField(key string, val interface{}) {
	s.fields[key] = val
}

func (s *fakeSpan) End() {
	s.ended = true
}
