package analyze

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/robin-collins/arecordd/internal/store"
)

// ExportCSV writes joined telemetry samples as CSV. Active tags are
// semicolon-joined in the final column.
func ExportCSV(w io.Writer, samples []store.TaggedSample) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"timestamp", "rms_level", "is_speech", "active_tags"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i := range samples {
		s := &samples[i]

		tags := make([]string, 0, len(s.ActiveTags))
		for _, t := range s.ActiveTags {
			tags = append(tags, string(t))
		}

		speech := "0"
		if s.Speech {
			speech = "1"
		}

		record := []string{
			s.Timestamp.Format(time.RFC3339Nano),
			strconv.FormatFloat(s.RMSPercent, 'f', 4, 64),
			speech,
			strings.Join(tags, ";"),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
