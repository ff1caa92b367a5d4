// Package vad implements two-stage speech/silence classification of PCM
// frames: an RMS amplitude pre-filter followed by an optional native
// voice-activity detector, with graceful fallback to a plain RMS
// threshold whenever the detector is unavailable or failing.
package vad
