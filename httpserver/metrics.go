package httpserver

import "context"

// MetricProducer mirrors the producer interface in the system package, so
// the listener gauges can be registered there without this package needing
// to know about it.
type MetricProducer interface {
	// MetricName is the name this group of metrics is published under.
	MetricName() string
	// Gauges are instantaneous name value pairs.
	Gauges(context.Context) map[string]float64
}
