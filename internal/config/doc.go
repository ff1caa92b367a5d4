// Package config provides typed, validated configuration for the recorder
// daemon, the data collector and the analysis CLI. Configuration is loaded
// once at startup from a YAML file; invalid combinations are rejected (or
// normalized to fallback behavior) at that single point.
package config
