package recommend

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robin-collins/arecordd/internal/metadata"
	"github.com/robin-collins/arecordd/internal/store"
)

// Confidence grades how trustworthy a recommendation is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Recommendation represents a suggested value for one tuning parameter.
// Value is empty when the collected data was insufficient to recommend
// anything; Reason always explains the outcome, and Analysis carries the
// intermediate figures the suggestion was derived from.
type Recommendation struct {
	Parameter  string
	Value      string
	Confidence Confidence
	Reason     string
	Analysis   map[string]float64
}

// minSamples is the smallest population a per-parameter analysis will
// draw conclusions from.
const minSamples = 100

// Analyze derives tuning recommendations for all four parameters from
// collected telemetry. Samples must be in timestamp order, as returned
// by the store.
func Analyze(samples []store.TaggedSample) []Recommendation {
	return []Recommendation{
		NoiseFloor(samples),
		SilenceThreshold(samples),
		Aggressiveness(samples),
		SilenceDuration(samples),
	}
}

// NoiseFloor recommends the noise floor threshold: the 90th percentile
// of non-speech RMS, so the pre-filter sits just above the room's
// steady-state level.
func NoiseFloor(samples []store.TaggedSample) Recommendation {
	rec := Recommendation{Parameter: "noise_floor_threshold", Analysis: map[string]float64{}}

	silence := rmsLevels(samples, false)
	rec.Analysis["silence_samples"] = float64(len(silence))

	if len(silence) == 0 {
		rec.Confidence = ConfidenceLow
		rec.Reason = "no non-speech samples observed"
		return rec
	}

	sort.Float64s(silence)
	p90 := Percentile(silence, 90)
	rec.Analysis["silence_rms_p90"] = p90

	rec.Value = formatPercent(p90)
	rec.Reason = "90th percentile of non-speech RMS levels"
	switch {
	case len(silence) >= 1000:
		rec.Confidence = ConfidenceHigh
	case len(silence) >= minSamples:
		rec.Confidence = ConfidenceMedium
	default:
		rec.Confidence = ConfidenceLow
		rec.Reason = fmt.Sprintf("90th percentile of non-speech RMS levels (only %d samples)", len(silence))
	}

	return rec
}

// SilenceThreshold recommends the speech/silence RMS threshold. When the
// silence and speech distributions separate cleanly the midpoint between
// them is used; otherwise a conservative multiple of the silence median.
func SilenceThreshold(samples []store.TaggedSample) Recommendation {
	rec := Recommendation{Parameter: "silence_threshold", Analysis: map[string]float64{}}

	silence := rmsLevels(samples, false)
	speech := rmsLevels(samples, true)
	rec.Analysis["silence_samples"] = float64(len(silence))
	rec.Analysis["speech_samples"] = float64(len(speech))

	if len(silence) == 0 || len(speech) == 0 {
		rec.Confidence = ConfidenceLow
		rec.Reason = fmt.Sprintf("need both classes: %d silence and %d speech samples",
			len(silence), len(speech))
		return rec
	}

	sort.Float64s(silence)
	sort.Float64s(speech)

	silenceP95 := Percentile(silence, 95)
	speechP5 := Percentile(speech, 5)
	rec.Analysis["silence_rms_p95"] = silenceP95
	rec.Analysis["speech_rms_p5"] = speechP5

	if speechP5 > silenceP95 {
		rec.Value = formatPercent((silenceP95 + speechP5) / 2)
		rec.Confidence = ConfidenceHigh
		rec.Reason = "midpoint between the silence and speech RMS distributions, which separate cleanly"
	} else {
		median := Percentile(silence, 50)
		rec.Analysis["silence_rms_median"] = median
		rec.Value = formatPercent(median * 1.5)
		rec.Confidence = ConfidenceMedium
		rec.Reason = "silence and speech RMS distributions overlap; using 1.5x the silence median"
	}

	// Small populations still get a value, graded down.
	if len(silence) < minSamples || len(speech) < minSamples {
		rec.Confidence = ConfidenceLow
	}
	return rec
}

// Aggressiveness recommends the detector aggressiveness from the false
// positive rates inside windows tagged as music or loud ambient noise,
// where any speech verdict is assumed wrong. Each tag category is rated
// on its own and the worse rate decides the tier, so misclassification
// concentrated in one category is never averaged away by the other.
func Aggressiveness(samples []store.TaggedSample) Recommendation {
	rec := Recommendation{Parameter: "vad_aggressiveness", Analysis: map[string]float64{}}

	var musicTotal, musicFP, ambientTotal, ambientFP int
	for i := range samples {
		if hasAnyTag(samples[i].ActiveTags, metadata.TagMusicPlaying) {
			musicTotal++
			if samples[i].Speech {
				musicFP++
			}
		}
		if hasAnyTag(samples[i].ActiveTags, metadata.TagLoudAmbient) {
			ambientTotal++
			if samples[i].Speech {
				ambientFP++
			}
		}
	}
	rec.Analysis["music_samples"] = float64(musicTotal)
	rec.Analysis["ambient_samples"] = float64(ambientTotal)

	if musicTotal+ambientTotal < minSamples {
		rec.Confidence = ConfidenceLow
		rec.Reason = fmt.Sprintf("insufficient data: %d samples inside music or loud-ambient tags, need %d",
			musicTotal+ambientTotal, minSamples)
		return rec
	}

	var musicRate, ambientRate float64
	if musicTotal > 0 {
		musicRate = float64(musicFP) / float64(musicTotal)
	}
	if ambientTotal > 0 {
		ambientRate = float64(ambientFP) / float64(ambientTotal)
	}
	rec.Analysis["music_false_positive_rate"] = musicRate
	rec.Analysis["ambient_false_positive_rate"] = ambientRate

	worst := musicRate
	if ambientRate > worst {
		worst = ambientRate
	}

	switch {
	case worst > 0.30:
		rec.Value = "3"
		rec.Confidence = ConfidenceHigh
		rec.Reason = fmt.Sprintf("%.0f%% of frames in the worst noise category misclassified as speech; maximum filtering needed", worst*100)
	case worst > 0.15:
		rec.Value = "2"
		rec.Confidence = ConfidenceMedium
		rec.Reason = fmt.Sprintf("%.0f%% of frames in the worst noise category misclassified as speech", worst*100)
	default:
		rec.Value = "1"
		rec.Confidence = ConfidenceMedium
		rec.Reason = fmt.Sprintf("only %.0f%% of frames in the worst noise category misclassified as speech", worst*100)
	}

	return rec
}

// silenceDurationMin and silenceDurationMax clamp the recommended stop
// duration to a usable range.
const (
	silenceDurationMin = 5 * time.Second
	silenceDurationMax = 30 * time.Second
)

// SilenceDuration recommends the silence stop duration: the 95th
// percentile of intra-speech pause lengths observed inside windows
// tagged as having active speakers, so natural pauses rarely cut a
// recording short.
func SilenceDuration(samples []store.TaggedSample) Recommendation {
	rec := Recommendation{Parameter: "silence_duration_seconds", Analysis: map[string]float64{}}

	var tagged []store.TaggedSample
	for i := range samples {
		if hasAnyTag(samples[i].ActiveTags, metadata.TagOneSpeakerClose, metadata.TagTwoSpeakers) {
			tagged = append(tagged, samples[i])
		}
	}
	rec.Analysis["speaker_tagged_samples"] = float64(len(tagged))

	if len(tagged) < minSamples {
		rec.Confidence = ConfidenceLow
		rec.Reason = fmt.Sprintf("insufficient data: %d samples inside speaker tags, need %d",
			len(tagged), minSamples)
		return rec
	}

	gaps := silenceGaps(tagged)
	rec.Analysis["silence_gaps"] = float64(len(gaps))

	if len(gaps) == 0 {
		rec.Confidence = ConfidenceLow
		rec.Reason = "no silence gaps observed inside speaker-tagged windows"
		return rec
	}

	sort.Float64s(gaps)
	p95 := Percentile(gaps, 95)
	rec.Analysis["gap_seconds_p95"] = p95

	recommended := time.Duration(p95 * float64(time.Second))
	if recommended < silenceDurationMin {
		recommended = silenceDurationMin
	}
	if recommended > silenceDurationMax {
		recommended = silenceDurationMax
	}

	rec.Value = fmt.Sprintf("%d", int(recommended.Seconds()))
	rec.Confidence = ConfidenceMedium
	rec.Reason = "95th percentile of pause lengths between speech inside speaker-tagged windows"
	return rec
}

// Percentile returns the value at percentile p of an ascending-sorted
// slice, using the floor(n*p/100) index clamped to the last element.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	idx := int(float64(len(sorted)) * p / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

// ConfigSnippet renders the recommendations that produced values as a
// configuration fragment ready to paste.
func ConfigSnippet(recs []Recommendation) string {
	values := make(map[string]string, len(recs))
	for _, r := range recs {
		if r.Value != "" {
			values[r.Parameter] = r.Value
		}
	}

	if len(values) == 0 {
		return ""
	}

	var b strings.Builder
	if values["silence_threshold"] != "" || values["noise_floor_threshold"] != "" {
		b.WriteString("audio:\n")
		if v := values["silence_threshold"]; v != "" {
			fmt.Fprintf(&b, "  silence_threshold: %q\n", v)
		}
		if v := values["noise_floor_threshold"]; v != "" {
			fmt.Fprintf(&b, "  noise_floor_threshold: %q\n", v)
		}
	}
	if v := values["vad_aggressiveness"]; v != "" {
		b.WriteString("vad:\n")
		fmt.Fprintf(&b, "  aggressiveness: %s\n", v)
	}
	if v := values["silence_duration_seconds"]; v != "" {
		b.WriteString("recording:\n")
		fmt.Fprintf(&b, "  silence_duration_seconds: %s\n", v)
	}

	return b.String()
}

// rmsLevels extracts the RMS values of samples matching the given speech
// classification.
func rmsLevels(samples []store.TaggedSample, speech bool) []float64 {
	var out []float64
	for i := range samples {
		if samples[i].Speech == speech {
			out = append(out, samples[i].RMSPercent)
		}
	}
	return out
}

// silenceGaps measures each run of consecutive non-speech samples
// bounded by speech on both sides, in seconds.
func silenceGaps(samples []store.TaggedSample) []float64 {
	var gaps []float64
	var gapStart *time.Time

	seenSpeech := false
	for i := range samples {
		if samples[i].Speech {
			if seenSpeech && gapStart != nil {
				gaps = append(gaps, samples[i].Timestamp.Sub(*gapStart).Seconds())
			}
			seenSpeech = true
			gapStart = nil
			continue
		}

		if seenSpeech && gapStart == nil {
			t := samples[i].Timestamp
			gapStart = &t
		}
	}

	return gaps
}

func hasAnyTag(tags []metadata.TagType, wanted ...metadata.TagType) bool {
	for _, t := range tags {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}
