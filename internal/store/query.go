package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/robin-collins/arecordd/internal/metadata"
)

// QueryMetrics returns metric samples within the optional time range,
// ordered by timestamp. limit <= 0 means no limit.
func (s *Store) QueryMetrics(start, end *time.Time, limit int) ([]MetricSample, error) {
	query := `SELECT timestamp, rms_level, is_speech FROM audio_metrics WHERE 1=1`
	var params []interface{}

	if start != nil {
		query += ` AND timestamp >= ?`
		params = append(params, unix(*start))
	}

	if end != nil {
		query += ` AND timestamp <= ?`
		params = append(params, unix(*end))
	}

	query += ` ORDER BY timestamp ASC`

	if limit > 0 {
		query += ` LIMIT ?`
		params = append(params, limit)
	}

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var samples []MetricSample
	for rows.Next() {
		var ts, rms float64
		var speech int
		if err := rows.Scan(&ts, &rms, &speech); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}

		samples = append(samples, MetricSample{
			Timestamp:  fromUnix(ts),
			RMSPercent: rms,
			Speech:     speech != 0,
		})
	}

	return samples, rows.Err()
}

// QueryTagEvents returns tag events overlapping the optional time range,
// ordered by start time. Overlap semantics: an event intersects the range
// unless it ended before the range starts or began after the range ends.
func (s *Store) QueryTagEvents(start, end *time.Time, tag metadata.TagType) ([]TagEvent, error) {
	query := `SELECT id, start_time, end_time, tag_type, duration_type FROM metadata_events WHERE 1=1`
	var params []interface{}

	if start != nil {
		query += ` AND (end_time IS NULL OR end_time >= ?)`
		params = append(params, unix(*start))
	}

	if end != nil {
		query += ` AND start_time <= ?`
		params = append(params, unix(*end))
	}

	if tag != "" {
		query += ` AND tag_type = ?`
		params = append(params, string(tag))
	}

	query += ` ORDER BY start_time ASC`

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("query tag events: %w", err)
	}
	defer rows.Close()

	var events []TagEvent
	for rows.Next() {
		var (
			ev       TagEvent
			startSec float64
			endSec   sql.NullFloat64
			tagStr   string
			modeStr  string
		)

		if err := rows.Scan(&ev.ID, &startSec, &endSec, &tagStr, &modeStr); err != nil {
			return nil, fmt.Errorf("scan tag event: %w", err)
		}

		ev.StartTime = fromUnix(startSec)
		if endSec.Valid {
			t := fromUnix(endSec.Float64)
			ev.EndTime = &t
		}
		ev.Tag = metadata.TagType(tagStr)

		mode, err := metadata.ParseDurationMode(modeStr)
		if err != nil {
			return nil, fmt.Errorf("scan tag event: %w", err)
		}
		ev.Mode = mode

		events = append(events, ev)
	}

	return events, rows.Err()
}

// ActiveAt reports whether the event covers time t: startTime <= t and
// (endTime unset or endTime >= t).
func (e *TagEvent) ActiveAt(t time.Time) bool {
	if e.StartTime.After(t) {
		return false
	}
	return e.EndTime == nil || !e.EndTime.Before(t)
}

// MetricsWithTags returns metric samples joined with the tag types active
// at each sample's timestamp.
func (s *Store) MetricsWithTags(start, end *time.Time) ([]TaggedSample, error) {
	metrics, err := s.QueryMetrics(start, end, 0)
	if err != nil {
		return nil, err
	}

	events, err := s.QueryTagEvents(start, end, "")
	if err != nil {
		return nil, err
	}

	tagged := make([]TaggedSample, 0, len(metrics))
	for _, m := range metrics {
		var active []metadata.TagType
		for i := range events {
			if events[i].ActiveAt(m.Timestamp) {
				active = append(active, events[i].Tag)
			}
		}
		tagged = append(tagged, TaggedSample{MetricSample: m, ActiveTags: active})
	}

	return tagged, nil
}

// Statistics represents aggregate figures for the stats command.
type Statistics struct {
	MetricsCount  int64
	TimeStart     *time.Time
	TimeEnd       *time.Time
	DurationHours float64

	RMSAvg float64
	RMSMin float64
	RMSMax float64

	SpeechFrames  int64
	SilenceFrames int64
	SpeechRatio   float64 // percent

	EventCount      int64
	UniqueTags      int64
	TagDistribution map[metadata.TagType]int64

	DatabaseSizeBytes int64
}

// Statistics computes aggregate statistics over the whole store.
func (s *Store) Statistics() (*Statistics, error) {
	stats := &Statistics{TagDistribution: make(map[metadata.TagType]int64)}

	var minTS, maxTS sql.NullFloat64
	row := s.db.QueryRow(`SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM audio_metrics`)
	if err := row.Scan(&stats.MetricsCount, &minTS, &maxTS); err != nil {
		return nil, fmt.Errorf("metrics counts: %w", err)
	}

	if minTS.Valid && maxTS.Valid {
		start, end := fromUnix(minTS.Float64), fromUnix(maxTS.Float64)
		stats.TimeStart = &start
		stats.TimeEnd = &end
		stats.DurationHours = (maxTS.Float64 - minTS.Float64) / 3600
	}

	var avg, min, max sql.NullFloat64
	row = s.db.QueryRow(`SELECT AVG(rms_level), MIN(rms_level), MAX(rms_level) FROM audio_metrics`)
	if err := row.Scan(&avg, &min, &max); err != nil {
		return nil, fmt.Errorf("rms statistics: %w", err)
	}
	stats.RMSAvg, stats.RMSMin, stats.RMSMax = avg.Float64, min.Float64, max.Float64

	row = s.db.QueryRow(`SELECT COUNT(*) FROM audio_metrics WHERE is_speech = 1`)
	if err := row.Scan(&stats.SpeechFrames); err != nil {
		return nil, fmt.Errorf("speech count: %w", err)
	}

	stats.SilenceFrames = stats.MetricsCount - stats.SpeechFrames
	if stats.MetricsCount > 0 {
		stats.SpeechRatio = float64(stats.SpeechFrames) / float64(stats.MetricsCount) * 100
	}

	row = s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT tag_type) FROM metadata_events`)
	if err := row.Scan(&stats.EventCount, &stats.UniqueTags); err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}

	rows, err := s.db.Query(`SELECT tag_type, COUNT(*) FROM metadata_events GROUP BY tag_type ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("tag distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag string
		var count int64
		if err := rows.Scan(&tag, &count); err != nil {
			return nil, fmt.Errorf("scan tag distribution: %w", err)
		}
		stats.TagDistribution[metadata.TagType(tag)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row = s.db.QueryRow(`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`)
	if err := row.Scan(&stats.DatabaseSizeBytes); err != nil {
		return nil, fmt.Errorf("database size: %w", err)
	}

	return stats, nil
}
