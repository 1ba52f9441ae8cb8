// Package closer keeps errors from deferred Close calls.
package closer

import "io"

// ErrorHandler closes c and stores the result in *in, unless *in already
// holds an error. Defer it with a pointer to the named return.
func ErrorHandler(c io.Closer, in *error) {
	cerr := c.Close()
	if *in == nil {
		*in = cerr
	}
}
