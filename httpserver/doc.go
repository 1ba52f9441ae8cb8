/*
Package httpserver runs HTTP APIs with graceful shutdown, port announcement
and connection gauges built in.
*/
package httpserver
