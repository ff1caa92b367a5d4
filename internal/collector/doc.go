// Package collector implements the telemetry control loop: frames from
// the capture device are classified, buffered, and persisted in batches
// while tag hotkeys annotate the acoustic context in real time.
package collector
