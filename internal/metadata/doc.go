// Package metadata implements the state machine for human-entered
// contextual tags: timed tags that expire 30 seconds after their last
// restart, and persistent toggle tags that are mutually exclusive with
// each other. Tag lifecycle events are reported to a pluggable sink for
// persistence.
package metadata
