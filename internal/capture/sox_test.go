package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robin-collins/arecordd/internal/audio"
)

func TestFileDurationReadsWAVHeader(t *testing.T) {
	// Two seconds of mono 16 kHz silence.
	samples := make([]int16, 2*16000)
	data, err := audio.EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "segment.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := FileDuration(path)
	if err != nil {
		t.Fatalf("FileDuration failed: %v", err)
	}
	if got != 2*time.Second {
		t.Errorf("duration = %v, want 2s", got)
	}
}

func TestFileDurationRejectsTruncatedWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := FileDuration(path); err == nil {
		t.Error("truncated WAV file should fail the duration probe")
	}
}
