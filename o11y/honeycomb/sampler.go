package honeycomb

import (
	"fmt"
	"hash/crc32"
	"math"

	dynsampler "github.com/honeycombio/dynsampler-go"
)

// TraceSampler decides whether a span is kept, keyed on fields chosen by
// KeyFunc. Decisions hash the trace id so a whole trace is kept or dropped
// together.
type TraceSampler struct {
	// KeyFunc reduces an event's fields to the single string key looked up
	// in the sampling strategy.
	KeyFunc func(map[string]interface{}) string

	Sampler dynsampler.Sampler
}

// Hook implements beeline.Config.SamplerHook.
func (s *TraceSampler) Hook(fields map[string]interface{}) (sample bool, rate int) {
	if keepRequested(fields) {
		return true, 1
	}

	rate = s.Sampler.GetSampleRate(s.KeyFunc(fields))
	if keepDeterministic(fmt.Sprintf("%v", fields["trace.trace_id"]), rate) {
		return true, rate
	}
	return false, 0
}

// keepRequested reports whether the span explicitly asked to be kept.
func keepRequested(fields map[string]interface{}) bool {
	keep, ok := fields["meta.keep.span"].(bool)
	return ok && keep
}

// keepDeterministic reports whether the determinant hashes under the keep
// threshold for rate, true means keep.
//
// See https://github.com/honeycombio/beeline-go/blob/master/sample/deterministic_sampler.go
func keepDeterministic(determinant string, rate int) bool {
	if rate == 1 {
		return true
	}

	threshold := math.MaxUint32 / uint32(rate) //nolint:gosec
	return crc32.ChecksumIEEE([]byte(determinant)) < threshold
}
