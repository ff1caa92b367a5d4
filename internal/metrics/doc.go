// Package metrics registers and serves Prometheus metrics for the
// recording and collection daemons.
package metrics
