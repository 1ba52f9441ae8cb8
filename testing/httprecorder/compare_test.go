package httprecorder

import (
	"net/http"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestIgnoreHeaders(t *testing.T) {
	assert.Check(t, cmp.DeepEqual(
		http.Header{
			"Content-Type": {"application/json"},
			"Trace":        {"t-1"},
			"Seq":          {"1", "2"},
		},
		http.Header{
			"Content-Type": {"application/json"},
			"Trace":        {"anything goes here"},
			"Seq":          {"1", "2"},
		},
		IgnoreHeaders("Trace"),
	))
}

func TestOnlyHeaders(t *testing.T) {
	assert.Check(t, cmp.DeepEqual(
		http.Header{
			"Accept":       {"not compared"},
			"Content-Type": {"application/json"},
			"Seq":          {"1", "2"},
			"Trace":        {"not compared"},
			"User-Agent":   {"not compared"},
		},
		http.Header{
			"Content-Type": {"application/json"},
			"Seq":          {"1", "2"},
		},
		OnlyHeaders("Content-Type", "Seq"),
	))
}
