/*
Package healthcheck serves the admin API: liveness and readiness probes fed
by every registered health checker, plus the Go runtime's pprof handlers.
*/
package healthcheck
