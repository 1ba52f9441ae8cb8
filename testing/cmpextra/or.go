// Package cmpextra adds comparisons for gotest.tools assertions beyond
// what the cmp package ships with.
package cmpextra

import (
	"fmt"
	"strings"

	"gotest.tools/v3/assert/cmp"
)

// Or succeeds when any one of the comparisons succeeds. When none do,
// the failure carries every individual failure message. Use it where a
// result is legitimately one of a few outcomes, for instance an error
// from a connection that raced a close.
func Or(comparisons ...cmp.Comparison) cmp.Comparison {
	return func() cmp.Result {
		if len(comparisons) < 2 {
			return cmp.ResultFailure("Or needs at least two comparisons")
		}

		msgs := []string{"no comparison passed:"}
		for _, c := range comparisons {
			res := c()
			if res.Success() {
				return res
			}
			msgs = append(msgs, failureMessage(res))
		}
		return cmp.ResultFailure(strings.Join(msgs, "\n"))
	}
}

type failer interface {
	FailureMessage() string
}

func failureMessage(r cmp.Result) string {
	if f, ok := r.(failer); ok {
		return f.FailureMessage()
	}
	return fmt.Sprintf("%v", r)
}
