package store

import (
	"fmt"
	"time"

	"github.com/robin-collins/arecordd/internal/metadata"
)

// InsertMetricsBatch writes a batch of metric samples in one transaction.
// Callers accumulate samples and flush on an interval or size trigger;
// single-row writes would not sustain frame rate.
func (s *Store) InsertMetricsBatch(samples []MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin metrics batch: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO audio_metrics (timestamp, rms_level, is_speech, audio_chunk) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare metrics insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range samples {
		speech := 0
		if m.Speech {
			speech = 1
		}

		if _, err := stmt.Exec(unix(m.Timestamp), m.RMSPercent, speech, m.Frame); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert metric sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metrics batch: %w", err)
	}

	return nil
}

// InsertTagEvent writes a new tag event row and returns its ID. end is
// nil for persistent tags that are still open.
func (s *Store) InsertTagEvent(start time.Time, tag metadata.TagType, mode metadata.DurationMode, end *time.Time) (int64, error) {
	var endVal interface{}
	if end != nil {
		endVal = unix(*end)
	}

	res, err := s.db.Exec(
		`INSERT INTO metadata_events (start_time, end_time, tag_type, duration_type) VALUES (?, ?, ?, ?)`,
		unix(start), endVal, string(tag), string(mode))
	if err != nil {
		return 0, fmt.Errorf("insert tag event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("tag event id: %w", err)
	}

	return id, nil
}

// SetTagEventEnd patches the end time of an existing tag event row in
// place. The row itself persists permanently.
func (s *Store) SetTagEventEnd(eventID int64, end time.Time) error {
	if _, err := s.db.Exec(
		`UPDATE metadata_events SET end_time = ? WHERE id = ?`, unix(end), eventID); err != nil {
		return fmt.Errorf("update tag event end: %w", err)
	}

	return nil
}

// Cleanup deletes all rows strictly older than now - days and reclaims
// the freed space. Returns the number of metric and event rows removed.
func (s *Store) Cleanup(days int, now time.Time) (int64, int64, error) {
	if days <= 0 {
		return 0, 0, fmt.Errorf("retention days must be positive, got %d", days)
	}

	cutoff := unix(now.Add(-time.Duration(days) * 24 * time.Hour))

	res, err := s.db.Exec(`DELETE FROM audio_metrics WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("delete old metrics: %w", err)
	}
	metricsDeleted, _ := res.RowsAffected()

	res, err = s.db.Exec(`DELETE FROM metadata_events WHERE start_time < ?`, cutoff)
	if err != nil {
		return metricsDeleted, 0, fmt.Errorf("delete old events: %w", err)
	}
	eventsDeleted, _ := res.RowsAffected()

	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return metricsDeleted, eventsDeleted, fmt.Errorf("vacuum: %w", err)
	}

	s.logger.Info("retention cleanup complete",
		"metrics_deleted", metricsDeleted,
		"events_deleted", eventsDeleted,
		"days", days,
	)

	return metricsDeleted, eventsDeleted, nil
}
