package analyze

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robin-collins/arecordd/internal/recommend"
	"github.com/robin-collins/arecordd/internal/store"
)

// FormatStatistics renders aggregate database statistics for the stats
// command.
func FormatStatistics(stats *store.Statistics) string {
	var b strings.Builder

	b.WriteString("=== Audio Telemetry Statistics ===\n\n")

	fmt.Fprintf(&b, "Metric samples:  %d\n", stats.MetricsCount)
	if stats.TimeStart != nil && stats.TimeEnd != nil {
		fmt.Fprintf(&b, "Time range:      %s .. %s (%.1f hours)\n",
			stats.TimeStart.Format(time.RFC3339),
			stats.TimeEnd.Format(time.RFC3339),
			stats.DurationHours)
	}

	if stats.MetricsCount > 0 {
		b.WriteString("\nRMS levels:\n")
		fmt.Fprintf(&b, "  average: %6.2f%%\n", stats.RMSAvg)
		fmt.Fprintf(&b, "  min:     %6.2f%%\n", stats.RMSMin)
		fmt.Fprintf(&b, "  max:     %6.2f%%\n", stats.RMSMax)

		b.WriteString("\nClassification:\n")
		fmt.Fprintf(&b, "  speech frames:  %d (%.1f%%)\n", stats.SpeechFrames, stats.SpeechRatio)
		fmt.Fprintf(&b, "  silence frames: %d\n", stats.SilenceFrames)
	}

	fmt.Fprintf(&b, "\nTag events: %d (%d distinct tags)\n", stats.EventCount, stats.UniqueTags)
	if len(stats.TagDistribution) > 0 {
		type tagCount struct {
			tag   string
			count int64
		}
		dist := make([]tagCount, 0, len(stats.TagDistribution))
		for tag, count := range stats.TagDistribution {
			dist = append(dist, tagCount{string(tag), count})
		}
		sort.Slice(dist, func(i, j int) bool {
			if dist[i].count != dist[j].count {
				return dist[i].count > dist[j].count
			}
			return dist[i].tag < dist[j].tag
		})
		for _, d := range dist {
			fmt.Fprintf(&b, "  %-20s %d\n", d.tag, d.count)
		}
	}

	fmt.Fprintf(&b, "\nDatabase size: %.2f MB\n", float64(stats.DatabaseSizeBytes)/(1024*1024))

	return b.String()
}

// FormatRecommendations renders tuning recommendations with their
// supporting analysis and a ready-to-paste configuration fragment.
func FormatRecommendations(recs []recommend.Recommendation) string {
	var b strings.Builder

	b.WriteString("=== Tuning Recommendations ===\n")

	for _, r := range recs {
		fmt.Fprintf(&b, "\n%s", r.Parameter)
		if r.Value != "" {
			fmt.Fprintf(&b, " = %s", r.Value)
		}
		fmt.Fprintf(&b, "  [confidence: %s]\n", r.Confidence)
		fmt.Fprintf(&b, "  %s\n", r.Reason)

		keys := make([]string, 0, len(r.Analysis))
		for k := range r.Analysis {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s: %.4g\n", k, r.Analysis[k])
		}
	}

	if snippet := recommend.ConfigSnippet(recs); snippet != "" {
		b.WriteString("\n=== SUGGESTED CONFIG CHANGES ===\n")
		b.WriteString(snippet)
	}

	return b.String()
}
