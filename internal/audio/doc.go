// Package audio provides PCM-level primitives: RMS amplitude measurement,
// fixed-size frame delivery over a bounded channel, and WAV header probing
// used for segment duration checks.
package audio
