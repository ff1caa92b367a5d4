package audio

import (
	"bytes"
	"math"
	"testing"
)

func TestRMSPercentSilence(t *testing.T) {
	frame := make([]byte, 960)
	if got := RMSPercent(frame); got != 0 {
		t.Errorf("RMSPercent(zeros) = %f, want 0", got)
	}
}

func TestRMSPercentFullScale(t *testing.T) {
	// Constant amplitude signal: RMS equals the amplitude.
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = 16384 // half of full scale
	}

	got := RMSPercent(SamplesToBytes(samples))
	want := 16384.0 / 32768.0 * 100.0
	if math.Abs(got-want) > 0.01 {
		t.Errorf("RMSPercent = %f, want %f", got, want)
	}
}

func TestRMSPercentSine(t *testing.T) {
	// A sine wave's RMS is amplitude / sqrt(2).
	samples := make([]int16, 1600)
	amplitude := 10000.0
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*float64(i)/160))
	}

	got := RMSPercent(SamplesToBytes(samples))
	want := amplitude / math.Sqrt2 / 32768.0 * 100.0
	if math.Abs(got-want) > 0.1 {
		t.Errorf("RMSPercent = %f, want about %f", got, want)
	}
}

func TestRMSPercentShortFrame(t *testing.T) {
	if got := RMSPercent(nil); got != 0 {
		t.Errorf("RMSPercent(nil) = %f, want 0", got)
	}
	if got := RMSPercent([]byte{0x01}); got != 0 {
		t.Errorf("RMSPercent(1 byte) = %f, want 0", got)
	}
}

func TestSampleByteRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	got := BytesToSamples(SamplesToBytes(samples))

	if len(got) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestFrameReaderDeliversFrames(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	reader := NewFrameReader(bytes.NewReader(data), 10, 4)
	reader.Start()

	var frames []Frame
	for f := range reader.Frames() {
		frames = append(frames, f)
	}

	if len(frames) != 10 {
		t.Fatalf("got %d frames, want 10", len(frames))
	}
	if frames[3].Data[0] != 30 {
		t.Errorf("frame 3 starts with %d, want 30", frames[3].Data[0])
	}
	if err := reader.Err(); err != nil {
		t.Errorf("end-of-stream should not be an error, got %v", err)
	}
}

func TestFrameReaderDropsTrailingPartialFrame(t *testing.T) {
	reader := NewFrameReader(bytes.NewReader(make([]byte, 25)), 10, 4)
	reader.Start()

	count := 0
	for range reader.Frames() {
		count++
	}

	if count != 2 {
		t.Errorf("got %d frames, want 2 (partial frame dropped)", count)
	}
	if err := reader.Err(); err != nil {
		t.Errorf("truncated stream should not be an error, got %v", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]int16, 16000) // one second
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	data, err := EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	info, err := ParseWAVInfo(data)
	if err != nil {
		t.Fatalf("ParseWAVInfo failed: %v", err)
	}

	if info.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("channels = %d, want 1", info.Channels)
	}
	if info.DataSize != 32000 {
		t.Errorf("data size = %d, want 32000", info.DataSize)
	}
	if math.Abs(info.DurationSeconds-1.0) > 0.001 {
		t.Errorf("duration = %f, want 1.0", info.DurationSeconds)
	}
}

func TestParseWAVInfoRejectsGarbage(t *testing.T) {
	if _, err := ParseWAVInfo([]byte("not a wav")); err == nil {
		t.Error("expected error for short data")
	}

	garbage := make([]byte, 64)
	if _, err := ParseWAVInfo(garbage); err == nil {
		t.Error("expected error for missing RIFF header")
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000, 1); err == nil {
		t.Error("expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0, 1); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
