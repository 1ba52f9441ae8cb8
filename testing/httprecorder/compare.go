package httprecorder

import (
	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// IgnoreHeaders is a cmp option that drops the named headers from header
// map comparisons.
func IgnoreHeaders(headers ...string) gocmp.Option {
	return cmpopts.IgnoreMapEntries(func(name string, _ []string) bool {
		return headerNamed(headers, name)
	})
}

// OnlyHeaders is a cmp option that compares nothing but the named headers.
func OnlyHeaders(headers ...string) gocmp.Option {
	return cmpopts.IgnoreMapEntries(func(name string, _ []string) bool {
		return !headerNamed(headers, name)
	})
}

func headerNamed(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}
