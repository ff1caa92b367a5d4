package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// tempDirName holds in-progress segments and the overlap buffer under the
// storage directory, so the final rename never crosses filesystems.
const tempDirName = ".tmp"

// Segment represents one recording segment's file identity. The segment
// exists only at TempPath until finalization relocates it to FinalPath.
type Segment struct {
	TempPath  string
	FinalPath string
	StartedAt time.Time
}

// NewSegment computes a unique (temp, final) path pair from a UTC
// timestamp, the configured prefix and the sample rate in kHz. A
// collision with an existing file at either path appends an incrementing
// version suffix until both are free.
func NewSegment(dir, prefix string, sampleRate int, format string, now time.Time) *Segment {
	stamp := now.UTC().Format("20060102_150405")
	khz := sampleRate / 1000

	name := fmt.Sprintf("%s_%s_%dkHz.%s", prefix, stamp, khz, format)
	tempPath := filepath.Join(dir, tempDirName, name)
	finalPath := filepath.Join(dir, name)

	for version := 1; pathExists(tempPath) || pathExists(finalPath); version++ {
		name = fmt.Sprintf("%s_%s_%dkHz_v%d.%s", prefix, stamp, khz, version, format)
		tempPath = filepath.Join(dir, tempDirName, name)
		finalPath = filepath.Join(dir, name)
	}

	return &Segment{
		TempPath:  tempPath,
		FinalPath: finalPath,
		StartedAt: now,
	}
}

// OverlapPath returns the well-known overlap buffer location in temp
// storage for the given format.
func OverlapPath(dir, format string) string {
	return filepath.Join(dir, tempDirName, ".overlap_buffer."+format)
}

// ValidateStorage ensures the storage directory (and its temp
// subdirectory) exists and is writable. A failure here is fatal at
// startup.
func ValidateStorage(dir string) error {
	tempDir := filepath.Join(dir, tempDirName)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return fmt.Errorf("cannot create storage directory %s: %w", tempDir, err)
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("cannot write to storage directory %s: %w", dir, err)
	}
	os.Remove(probe)

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
