/*
Package supervisor runs one service binary as a child process for the length
of an acceptance test, and knows when it is ready.

It is part of our belief that testing binaries that will be shipping into
production with as little modification as is possible is one of the most
effective ways of producing high value tests.

The child announces readiness by printing "listening on port N" (in any case,
split across writes if it likes); httpserver.New does this for services built
in this repo. The supervisor resolves the port exactly once from the first
announcement, can probe the service over HTTP with the trace propagation
headers set so the child's spans join the test's trace, and reads back the
spans the child wrote to its dump file (see testing/spandump). Terminate asks
the child to stop with SIGTERM and escalates to SIGKILL, distinguishing exits
it asked for from a child that died on its own.
*/
package supervisor
