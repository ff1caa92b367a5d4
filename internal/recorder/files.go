package recorder

import (
	"time"

	"github.com/robin-collins/arecordd/internal/capture"
)

// SoxFiles implements FileOps over the external sox helpers.
type SoxFiles struct{}

func (SoxFiles) TrimTail(src, dst string, tail time.Duration) error {
	return capture.TrimTail(src, dst, tail)
}

func (SoxFiles) Concat(first, second, dst string) error {
	return capture.Concat(first, second, dst)
}

func (SoxFiles) Duration(path string) (time.Duration, error) {
	return capture.FileDuration(path)
}
