/*
Package system assembles the background parts of a service and manages
their lifecycle as one unit.

A service typically has several things running at once, an HTTP server or
two, health checks, a metrics loop, worker loops. All of them need starting,
and all of them need to stop cleanly on SIGTERM, after a short drain delay
so that in flight requests are not cut off (load balancers and Kubernetes
keep routing traffic for a moment after the signal).

Components register themselves on a System, which runs each one in its own
goroutine and takes the whole set down together when any one of them fails
or the process is told to stop.

The termination handling also cooperates with the process supervision used
in acceptance tests, so a supervised binary exits cleanly on SIGTERM.

See the example service main func for the canonical usage.
*/
package system
