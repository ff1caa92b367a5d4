package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robin-collins/arecordd/internal/audio"
)

const (
	probeTimeout = 10 * time.Second
	soxOpTimeout = 60 * time.Second
)

// Probe verifies that the external capture and encoder executables exist
// and respond. Failures here are fatal: the daemon must not start its
// loop without working collaborators.
func Probe(logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sox", "--version").Output()
	if err != nil {
		return fmt.Errorf("sox is required but not available or not working: %w", err)
	}
	logger.Info("sox version check passed", slog.String("version", strings.TrimSpace(string(out))))

	ctx2, cancel2 := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel2()

	if err := exec.CommandContext(ctx2, "arecord", "--list-devices").Run(); err != nil {
		return fmt.Errorf("arecord is required but not available: %w", err)
	}
	logger.Info("arecord available")

	return nil
}

// TrimTail extracts the trailing portion of an audio file into dst, used
// to build the cross-segment overlap buffer.
func TrimTail(src, dst string, tail time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), soxOpTimeout)
	defer cancel()

	// sox positions a negative trim offset relative to end-of-file.
	offset := fmt.Sprintf("-%d:%02d", int(tail.Minutes()), int(tail.Seconds())%60)

	cmd := exec.CommandContext(ctx, "sox", src, dst, "trim", offset)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sox trim failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	return nil
}

// Concat joins two audio files of the same format into dst in order.
func Concat(first, second, dst string) error {
	ctx, cancel := context.WithTimeout(context.Background(), soxOpTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sox", first, second, dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sox concat failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	return nil
}

// FileDuration measures the audio duration of a file. WAV files are read
// directly from their header; other formats are probed through sox.
func FileDuration(path string) (time.Duration, error) {
	if filepath.Ext(path) == ".wav" {
		info, err := audio.FileWAVInfo(path)
		if err != nil {
			return 0, err
		}
		return time.Duration(info.DurationSeconds * float64(time.Second)), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sox", "--i", "-D", path).Output()
	if err != nil {
		return 0, fmt.Errorf("sox duration probe failed for %s: %w", path, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable duration %q for %s: %w", strings.TrimSpace(string(out)), path, err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}
