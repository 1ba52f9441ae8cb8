/*
Package worker runs a supervised work loop with tracing and back-off
when a cycle reports there was nothing to do.

The system package uses it for metric publishing, and services can use
it for any recurring job such as draining queue-like data sources.
*/
package worker
