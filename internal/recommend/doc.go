// Package recommend derives tuning suggestions for the classifier and
// recorder from collected telemetry: noise floor and silence thresholds
// from the RMS distributions, detector aggressiveness from the false
// positive rate inside noise-tagged windows, and the silence stop
// duration from pause lengths inside speaker-tagged windows.
package recommend
