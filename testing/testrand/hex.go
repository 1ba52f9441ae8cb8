// Package testrand generates insecure random identifiers for tests.
package testrand

import (
	"encoding/hex"
	"math/rand"
)

// Hex returns a random string of n characters from the hex alphabet.
// An odd n does not decode as hex but still works as an identifier.
func Hex(n int) string {
	b := make([]byte, n/2+1)
	//#nosec:G404 // test identifiers do not need a secure source
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)[:n]
}
