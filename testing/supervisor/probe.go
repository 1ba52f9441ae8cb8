package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/testing/spandump"
)

// Probe waits for the child to become ready and GETs the given path on it,
// retrying with exponential backoff until a 2xx arrives or the probe budget
// runs out. A child exit observed mid-probe aborts immediately, the process
// is not coming back. The request carries trace propagation headers so spans
// the child emits while handling it join this trace.
func (s *Supervisor) Probe(ctx context.Context, path string) (err error) {
	ctx, span := o11y.StartSpan(ctx, "supervisor: probe")
	defer o11y.End(span, &err)
	span.AddField("name", s.name)
	span.AddField("path", path)

	port, err := s.AwaitPort(ctx)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("http://127.0.0.1:%d/%s", port, strings.TrimLeft(path, "/"))
	span.AddField("url", u)

	prop := o11y.FromContext(ctx).Helpers().ExtractPropagation(ctx)

	attemptCounter := 0
	attempt := func() error {
		attemptCounter++

		if s.exit.resolved() {
			_, exitErr := s.exit.wait(ctx)
			if exitErr == nil {
				exitErr = fmt.Errorf("process %d exited while being probed", s.PID())
			}
			return backoff.Permanent(exitErr)
		}

		actx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(actx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, vs := range prop.Headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		res, err := http.DefaultClient.Do(req)
		if err != nil {
			// url errors repeat the method and url which clutters the logs
			e := &url.Error{}
			if errors.As(err, &e) {
				err = e.Err
			}
			return err
		}
		defer func() {
			// drain so the connection can be reused by the next attempt
			_, _ = io.Copy(io.Discard, res.Body)
			_ = res.Body.Close()
		}()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return fmt.Errorf("probe returned %d after %d attempt(s)", res.StatusCode, attemptCounter)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond * 50
	bo.MaxElapsedTime = s.probeTimeout
	return backoff.Retry(attempt, backoff.WithContext(bo, ctx))
}

// ProbeAndReadSpans probes path and then reads back every span the child has
// dumped so far. It errors if the supervisor was started without a span dump
// path.
func (s *Supervisor) ProbeAndReadSpans(ctx context.Context, path string) ([]spandump.Record, error) {
	if s.spanDump == "" {
		return nil, errors.New("no span dump path configured")
	}
	if err := s.Probe(ctx, path); err != nil {
		return nil, err
	}
	return spandump.New(s.spanDump).ReadAll()
}
