package fakestatsd_test

import (
	"testing"

	"github.com/DataDog/datadog-go/statsd"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"

	"github.com/spantrap/harness/testing/fakestatsd"
)

func TestExample(t *testing.T) {
	// the server shuts down when the test ends
	s := fakestatsd.New(t)

	stats, err := statsd.New(s.Addr(),
		statsd.WithNamespace("kv."),
		statsd.WithTags([]string{"version:9.8.7"}),
	)
	assert.Assert(t, err)
	t.Cleanup(func() {
		assert.Assert(t, stats.Close())
	})

	t.Run("Send a count", func(t *testing.T) {
		err = stats.Count("store_writes", 1, []string{"store:main"}, 1)
		assert.Check(t, err)
	})

	t.Run("The server saw it", func(t *testing.T) {
		poll.WaitOn(t, func(t poll.LogT) poll.Result {
			if len(s.Metrics()) == 0 {
				return poll.Continue("nothing received yet")
			}
			return poll.Success()
		})
		assert.Check(t, cmp.DeepEqual([]fakestatsd.Metric{
			{Name: "kv.store_writes", Value: "1|c|", Tags: []string{"version:9.8.7", "store:main"}},
		}, s.Metrics()))
	})
}
