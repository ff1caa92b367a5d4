package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/robin-collins/arecordd/internal/metadata"
)

// MetricSample represents one classified frame's telemetry. Immutable
// once stored.
type MetricSample struct {
	Timestamp  time.Time
	RMSPercent float64
	Speech     bool
	Frame      []byte // raw PCM, optional
}

// TagEvent represents one stored tag lifecycle row.
type TagEvent struct {
	ID        int64
	StartTime time.Time
	EndTime   *time.Time
	Tag       metadata.TagType
	Mode      metadata.DurationMode
}

// TaggedSample pairs a metric sample with the tag types active at its
// timestamp.
type TaggedSample struct {
	MetricSample
	ActiveTags []metadata.TagType
}

// Store provides batched, durable storage of telemetry samples and tag
// events over SQLite. WAL journaling lets the analyzer query concurrently
// with the collector's batch flushes.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the telemetry database and ensures the
// schema exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Write-ahead logging favors write throughput and keeps readers from
	// blocking the writer's batch flush.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("telemetry database opened", slog.String("path", path))
	return s, nil
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audio_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp REAL NOT NULL,
			rms_level REAL NOT NULL,
			is_speech INTEGER NOT NULL,
			audio_chunk BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS metadata_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time REAL NOT NULL,
			end_time REAL,
			tag_type TEXT NOT NULL,
			duration_type TEXT NOT NULL,
			CHECK (duration_type IN ('timed_30s', 'persistent'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_time ON audio_metrics(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_time ON metadata_events(start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tag ON metadata_events(tag_type)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// unix converts a time to the stored REAL seconds representation.
func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// fromUnix converts stored REAL seconds back to a time.
func fromUnix(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}
