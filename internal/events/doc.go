// Package events provides the non-blocking hub that batches notification store
// events on a background goroutine and fans them out to pluggable sinks such
// as Prometheus metrics, the alert publisher, or the archive.
package events
