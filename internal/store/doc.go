// Package store persists classifier telemetry and tag events to SQLite.
// Metric samples are appended in batched transactions; tag events are
// inserted on activation and patched in place when they end. Time-range
// queries use interval-overlap semantics, and a retention purge removes
// rows older than the configured horizon.
package store
