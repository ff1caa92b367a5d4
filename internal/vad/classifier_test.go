package vad

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/robin-collins/arecordd/internal/audio"
	"github.com/robin-collins/arecordd/internal/metrics"
)

// fakeDetector returns scripted results and records invocations.
type fakeDetector struct {
	speech bool
	err    error
	calls  int
}

func (d *fakeDetector) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	d.calls++
	return d.speech, d.err
}

// frameWithAmplitude builds a frame whose RMS percent equals
// amplitude/32768*100.
func frameWithAmplitude(amplitude int16, samples int) []byte {
	s := make([]int16, samples)
	for i := range s {
		s[i] = amplitude
	}
	return audio.SamplesToBytes(s)
}

func TestClassifyNoiseFloorSkipsDetector(t *testing.T) {
	detector := &fakeDetector{speech: true}
	c := NewClassifier(Config{
		SampleRate:        16000,
		NoiseFloorPercent: 0.5,
		SilencePercent:    1.0,
	}, detector, nil, nil)

	// Amplitude 100 is about 0.3% RMS, below the noise floor.
	v := c.Classify(frameWithAmplitude(100, 480))

	if v.Speech {
		t.Error("frame below noise floor should be silence")
	}
	if detector.calls != 0 {
		t.Errorf("detector called %d times, want 0", detector.calls)
	}
}

func TestClassifyUsesDetectorVerdict(t *testing.T) {
	// Amplitude 1000 is about 3% RMS, above the noise floor.
	loud := frameWithAmplitude(1000, 480)

	for _, speech := range []bool{true, false} {
		detector := &fakeDetector{speech: speech}
		c := NewClassifier(Config{
			SampleRate:        16000,
			NoiseFloorPercent: 0.5,
			SilencePercent:    1.0,
		}, detector, nil, nil)

		v := c.Classify(loud)
		if v.Speech != speech {
			t.Errorf("verdict = %v, want detector's %v", v.Speech, speech)
		}
		if detector.calls != 1 {
			t.Errorf("detector called %d times, want 1", detector.calls)
		}
	}
}

func TestClassifyFallsBackOnDetectorError(t *testing.T) {
	detector := &fakeDetector{err: fmt.Errorf("boom")}
	c := NewClassifier(Config{
		SampleRate:        16000,
		NoiseFloorPercent: 0.5,
		SilencePercent:    1.0,
	}, detector, nil, nil)

	// 3% RMS, above the 1% silence threshold: fallback says speech.
	v := c.Classify(frameWithAmplitude(1000, 480))
	if !v.Speech {
		t.Error("fallback should classify loud frame as speech")
	}

	// 0.9% RMS, above noise floor but below silence threshold: silence.
	v = c.Classify(frameWithAmplitude(295, 480))
	if v.Speech {
		t.Error("fallback should classify quiet frame as silence")
	}

	stats := c.GetStats()
	if stats.DetectorErrors != 2 {
		t.Errorf("detector errors = %d, want 2", stats.DetectorErrors)
	}
}

func TestClassifyFallbackOnlyMode(t *testing.T) {
	c := NewClassifier(Config{
		SampleRate:        16000,
		NoiseFloorPercent: 0.5,
		SilencePercent:    1.0,
	}, nil, nil, nil)

	if v := c.Classify(frameWithAmplitude(1000, 480)); !v.Speech {
		t.Error("loud frame should be speech without a detector")
	}
	if v := c.Classify(frameWithAmplitude(100, 480)); v.Speech {
		t.Error("quiet frame should be silence without a detector")
	}

	stats := c.GetStats()
	if stats.FramesTotal != 2 {
		t.Errorf("frames total = %d, want 2", stats.FramesTotal)
	}
	if stats.SpeechFrames != 1 {
		t.Errorf("speech frames = %d, want 1", stats.SpeechFrames)
	}
	if stats.DetectorErrors != 0 {
		t.Errorf("detector errors = %d, want 0", stats.DetectorErrors)
	}
}

func TestDetectorErrorsFeedMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	detector := &fakeDetector{err: fmt.Errorf("boom")}
	c := NewClassifier(Config{
		SampleRate:        16000,
		NoiseFloorPercent: 0.5,
		SilencePercent:    1.0,
	}, detector, m, nil)

	c.Classify(frameWithAmplitude(1000, 480))
	c.Classify(frameWithAmplitude(1000, 480))

	if got := testutil.ToFloat64(m.DetectorErrors); got != 2 {
		t.Errorf("detector error counter = %v, want 2", got)
	}
}

func TestVerdictCarriesRMS(t *testing.T) {
	c := NewClassifier(Config{NoiseFloorPercent: 0.5, SilencePercent: 1.0}, nil, nil, nil)

	v := c.Classify(frameWithAmplitude(16384, 480))
	want := 16384.0 / 32768.0 * 100.0
	if v.RMSPercent < want-0.1 || v.RMSPercent > want+0.1 {
		t.Errorf("RMSPercent = %f, want about %f", v.RMSPercent, want)
	}
}
