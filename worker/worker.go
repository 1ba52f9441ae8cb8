package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/recontext"
)

// ErrShouldBackoff tells Run the last cycle found nothing to do.
var ErrShouldBackoff = errors.New("should back off")

type Config struct {
	// Name appears on the span traced for each cycle.
	Name string
	// NoWorkBackOff controls how long the loop sleeps after an idle cycle.
	// The default is an exponential back-off capped at five seconds.
	NoWorkBackOff backoff.BackOff
	// MaxWorkTime bounds the context deadline each cycle runs under.
	MaxWorkTime time.Duration
	// WorkFunc is called once per cycle. It should return ErrShouldBackoff
	// when it found no work to pick up.
	WorkFunc func(ctx context.Context) error

	sleep func(ctx context.Context, delay time.Duration)
}

// Run calls WorkFunc in a loop until ctx is cancelled. Every cycle is
// traced under its own span and deadline. A cycle that reports no work
// makes the loop sleep before the next attempt, any other cycle resets
// the back-off.
func Run(ctx context.Context, cfg Config) {
	cfg = withDefaults(cfg)
	cfg.NoWorkBackOff.Reset()

	for ctx.Err() == nil {
		delay, idle := cycle(ctx, cfg)
		if !idle {
			cfg.NoWorkBackOff.Reset()
			continue
		}
		cfg.sleep(ctx, delay)
	}
}

func withDefaults(cfg Config) Config {
	if cfg.sleep == nil {
		cfg.sleep = sleep
	}
	if cfg.NoWorkBackOff == nil {
		cfg.NoWorkBackOff = defaultBackOff()
	}
	return cfg
}

func sleep(ctx context.Context, delay time.Duration) {
	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func defaultBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval: 50 * time.Millisecond,
		Multiplier:      2,
		MaxInterval:     5 * time.Second,
		Clock:           backoff.SystemClock,
	}
	b.Reset()
	return b
}

// cycle runs WorkFunc once. idle reports whether the loop should back
// off before the next cycle, and delay is how long for.
//
// The work context keeps the values of the loop context but not its
// cancellation, so a cycle in flight when the loop shuts down still
// finishes, bounded by MaxWorkTime.
func cycle(parent context.Context, cfg Config) (delay time.Duration, idle bool) {
	ctx, cancel := recontext.WithNewTimeout(parent, cfg.MaxWorkTime)
	defer cancel()

	ctx, span := o11y.StartSpan(ctx, "worker: "+cfg.Name)
	span.RecordMetric(o11y.Timing("worker", "loop", "result"))
	span.AddField("loop", cfg.Name)
	var err error
	defer o11y.End(span, &err)

	// A panic in one cycle should not take the whole loop down, the same
	// way net/http treats a panicking handler.
	defer func() {
		if r := recover(); r != nil {
			err = o11y.HandlePanic(ctx, span, r, nil)
		}
	}()

	err = cfg.WorkFunc(ctx)
	if errors.Is(err, ErrShouldBackoff) {
		err = nil
		delay = cfg.NoWorkBackOff.NextBackOff()
		idle = true
	}

	span.AddField("backoff_ms", delay.Milliseconds())
	return delay, idle
}
