/*
Package httprecorder captures every request an HTTP handler receives, for
later inspection in tests.

Wrap a fake upstream's handler with one of the middleware subpackages and
assert on the recorded method, URL, headers and body to prove a client sent
what it should have.
*/
package httprecorder
