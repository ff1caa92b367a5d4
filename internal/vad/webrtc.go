package vad

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// WebRTCDetector wraps the WebRTC voice-activity engine. It is valid only
// for 10/20/30 ms frames at 8/16/32/48 kHz mono.
type WebRTCDetector struct {
	vad *webrtcvad.VAD
}

// NewWebRTCDetector creates a detector with the given aggressiveness
// (0 = most permissive, 3 = most aggressive filtering).
func NewWebRTCDetector(aggressiveness int) (*WebRTCDetector, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("aggressiveness must be between 0 and 3, got %d", aggressiveness)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create webrtc vad: %w", err)
	}

	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("failed to set vad aggressiveness %d: %w", aggressiveness, err)
	}

	return &WebRTCDetector{vad: v}, nil
}

// IsSpeech classifies one frame. Frames whose (sampleRate, length) pair is
// outside the engine's supported set are reported as errors so the
// classifier falls back to its RMS threshold.
func (d *WebRTCDetector) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if !d.vad.ValidRateAndFrameLength(sampleRate, len(frame)/2) {
		return false, fmt.Errorf("unsupported rate/frame combination: %d Hz, %d samples", sampleRate, len(frame)/2)
	}

	speech, err := d.vad.Process(sampleRate, frame)
	if err != nil {
		return false, fmt.Errorf("vad process: %w", err)
	}

	return speech, nil
}
