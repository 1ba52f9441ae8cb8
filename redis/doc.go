/*
Package redis wires the go-redis client into a system, adding lifecycle
management, a readiness check and connection pool gauges.

Both single node and cluster clients are covered.
*/
package redis
