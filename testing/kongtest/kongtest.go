// Package kongtest renders the help text of a kong CLI struct, so tests
// can assert on the flags a binary exposes.
package kongtest

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
)

// Help parses --help against cli and returns what kong printed. Parsing
// also applies the declared defaults to cli, so the caller can assert on
// those too.
func Help(t *testing.T, cli interface{}) string {
	t.Helper()

	var out bytes.Buffer
	rc := -1
	app, err := kong.New(cli,
		kong.Name("test-app"),
		kong.Writers(&out, &out),
		kong.Exit(func(i int) {
			rc = i
		}),
	)
	assert.Check(t, err)

	_, err = app.Parse([]string{"--help"})
	assert.Check(t, err)
	assert.Check(t, cmp.Equal(0, rc))

	return out.String()
}
