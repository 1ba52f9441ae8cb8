// Package secret keeps credentials out of logs. A secret.String redacts
// itself on every formatting and marshalling path, the value only comes
// out through an explicit Raw call.
package secret

const redacted = "REDACTED"

// String holds a sensitive value.
type String string

// String satisfies fmt.Stringer with the redacted form, so %s and %v
// never leak the value.
func (s String) String() string {
	return redacted
}

// GoString implements fmt.GoStringer, so the %#v verb redacts too.
func (s String) GoString() string {
	return redacted
}

// Raw returns the sensitive value.
func (s String) Raw() string {
	return string(s)
}

// MarshalJSON writes the redacted form, never the value.
func (s String) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
