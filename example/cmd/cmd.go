// Package cmd holds the build identity stamped in at link time.
package cmd

var (
	Version = "dev"
	Date    = "unknown"
)
