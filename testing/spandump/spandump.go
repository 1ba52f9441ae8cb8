/*
Package spandump reads the span dump files written by services under test.

A service configured with a span dump path (config/o11y Config.SpanDump,
normally injected by the supervisor via the O11Y_SPAN_DUMP env var) appends
every span it sends as one JSON line. This package is the reading side:
tests point a Reader at the file and assert on the spans the service
produced, without needing a honeycomb server.
*/
package spandump

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/spantrap/harness/testing/poll"
)

// Record is one span as written to the dump file.
type Record struct {
	Time       time.Time              `json:"time"`
	Dataset    string                 `json:"dataset"`
	SampleRate uint                   `json:"samplerate"`
	Data       map[string]interface{} `json:"data"`
}

// Name returns the span name, or "" if the record has none.
func (r Record) Name() string {
	name, _ := r.Data["name"].(string)
	return name
}

// Field returns the named span field, nil if absent. Note that fields added
// with AddField carry the "app." prefix in the dump.
func (r Record) Field(key string) interface{} {
	return r.Data[key]
}

type Reader struct {
	path string
}

func New(path string) *Reader {
	return &Reader{path: path}
}

// ReadAll returns every complete record currently in the dump. A file that
// does not exist yet reads as empty, since the service may not have sent a
// span at all. Lines that do not parse are skipped; the writer appends each
// record with a single write so only a line still being written can be
// malformed, and it will parse on a later read.
func (r *Reader) ReadAll() ([]Record, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var recs []Record
	scanner := bufio.NewScanner(f)
	// spans with large fields can exceed the default token size
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ReadUntilCount polls ReadAll every 500ms until at least expected records
// exist, returning as soon as they do. Running out of time is not an error:
// the records seen so far are returned and the caller's count assertion
// produces a more useful failure than a timeout would. Cancellation of ctx
// and read failures are returned.
func (r *Reader) ReadUntilCount(ctx context.Context, expected int, timeout time.Duration) ([]Record, error) {
	var recs []Record
	err := poll.Every(ctx, timeout, time.Millisecond*500, func() (stop bool, err error) {
		recs, err = r.ReadAll()
		if err != nil {
			return true, err
		}
		return len(recs) >= expected, nil
	})
	switch {
	case err == nil:
		return recs, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return recs, nil
	default:
		return nil, err
	}
}
