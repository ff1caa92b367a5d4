package vad

import (
	"log/slog"
	"sync"

	"github.com/robin-collins/arecordd/internal/audio"
	"github.com/robin-collins/arecordd/internal/metrics"
)

// Verdict represents the classifier's judgement of a single frame.
type Verdict struct {
	Speech     bool
	RMSPercent float64
}

// Detector is the native voice-activity capability. Implementations
// classify a fixed-size PCM frame more accurately than amplitude alone.
// Any error is treated as a soft failure by the classifier.
type Detector interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// Config contains classifier thresholds.
type Config struct {
	SampleRate        int
	NoiseFloorPercent float64
	SilencePercent    float64
}

// Classifier implements two-stage speech/silence classification: a cheap
// RMS pre-filter followed by the native detector, falling back to a plain
// RMS threshold whenever the detector is absent or fails.
type Classifier struct {
	config   Config
	detector Detector // nil means RMS-fallback only
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu             sync.Mutex
	framesTotal    uint64
	speechFrames   uint64
	detectorErrors uint64
}

// Stats represents classifier counters.
type Stats struct {
	FramesTotal    uint64
	SpeechFrames   uint64
	DetectorErrors uint64
}

// NewClassifier creates a classifier. A nil detector selects RMS-fallback
// mode permanently; m may be nil when metrics are disabled.
func NewClassifier(config Config, detector Detector, m *metrics.Metrics, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &Classifier{
		config:   config,
		detector: detector,
		metrics:  m,
		logger:   logger,
	}
}

// Classify scores one frame. Stage 1 rejects near-zero noise on RMS alone
// without invoking the detector; stage 2 asks the detector and falls back
// to the RMS silence threshold on any detector error.
func (c *Classifier) Classify(frame []byte) Verdict {
	rms := audio.RMSPercent(frame)

	if rms < c.config.NoiseFloorPercent {
		return c.record(Verdict{Speech: false, RMSPercent: rms})
	}

	if c.detector != nil {
		speech, err := c.detector.IsSpeech(frame, c.config.SampleRate)
		if err == nil {
			return c.record(Verdict{Speech: speech, RMSPercent: rms})
		}

		c.mu.Lock()
		c.detectorErrors++
		n := c.detectorErrors
		c.mu.Unlock()
		c.metrics.RecordDetectorError()

		// Log the first failure and then sampled repeats to avoid
		// flooding at frame rate.
		if n == 1 || n%1000 == 0 {
			c.logger.Warn("native detector failed, using RMS fallback",
				slog.String("error", err.Error()),
				slog.Uint64("failures", n),
			)
		}
	}

	return c.record(Verdict{Speech: rms >= c.config.SilencePercent, RMSPercent: rms})
}

func (c *Classifier) record(v Verdict) Verdict {
	c.mu.Lock()
	c.framesTotal++
	if v.Speech {
		c.speechFrames++
	}
	c.mu.Unlock()
	return v
}

// GetStats returns current classifier counters.
func (c *Classifier) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		FramesTotal:    c.framesTotal,
		SpeechFrames:   c.speechFrames,
		DetectorErrors: c.detectorErrors,
	}
}
