package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/robin-collins/arecordd/internal/metadata"
)

var t0 = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

// within reports whether two times agree to a tolerance that absorbs the
// float64 seconds round trip through the database.
func within(a, b time.Time, tolerance time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestInsertAndQueryMetrics(t *testing.T) {
	s := openTestStore(t)

	samples := make([]MetricSample, 10)
	for i := range samples {
		samples[i] = MetricSample{
			Timestamp:  t0.Add(time.Duration(i) * time.Second),
			RMSPercent: float64(i),
			Speech:     i%2 == 0,
		}
	}

	if err := s.InsertMetricsBatch(samples); err != nil {
		t.Fatalf("InsertMetricsBatch failed: %v", err)
	}

	got, err := s.QueryMetrics(nil, nil, 0)
	if err != nil {
		t.Fatalf("QueryMetrics failed: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d samples, want 10", len(got))
	}
	if got[3].RMSPercent != 3.0 {
		t.Errorf("sample 3 rms = %f, want 3.0", got[3].RMSPercent)
	}
	if got[3].Speech {
		t.Error("sample 3 should be silence")
	}
	if !within(got[3].Timestamp, t0.Add(3*time.Second), time.Millisecond) {
		t.Errorf("sample 3 timestamp = %v, want %v", got[3].Timestamp, t0.Add(3*time.Second))
	}
}

func TestQueryMetricsRange(t *testing.T) {
	s := openTestStore(t)

	var samples []MetricSample
	for i := 0; i < 20; i++ {
		samples = append(samples, MetricSample{
			Timestamp:  t0.Add(time.Duration(i) * time.Minute),
			RMSPercent: 1.0,
		})
	}
	if err := s.InsertMetricsBatch(samples); err != nil {
		t.Fatal(err)
	}

	start := t0.Add(5 * time.Minute)
	end := t0.Add(10 * time.Minute)
	got, err := s.QueryMetrics(&start, &end, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 { // minutes 5..10 inclusive
		t.Errorf("got %d samples in range, want 6", len(got))
	}

	limited, err := s.QueryMetrics(&start, &end, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 3 {
		t.Errorf("got %d samples with limit, want 3", len(limited))
	}
}

func TestEmptyBatchIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.InsertMetricsBatch(nil); err != nil {
		t.Errorf("empty batch should succeed, got %v", err)
	}
}

func TestTagEventLifecycle(t *testing.T) {
	s := openTestStore(t)

	id, err := s.InsertTagEvent(t0, metadata.TagTwoSpeakers, metadata.ModePersistent, nil)
	if err != nil {
		t.Fatalf("InsertTagEvent failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a nonzero event id")
	}

	events, err := s.QueryTagEvents(nil, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].EndTime != nil {
		t.Error("open event should have nil end time")
	}

	endAt := t0.Add(5 * time.Minute)
	if err := s.SetTagEventEnd(id, endAt); err != nil {
		t.Fatalf("SetTagEventEnd failed: %v", err)
	}

	events, err = s.QueryTagEvents(nil, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if events[0].EndTime == nil || !within(*events[0].EndTime, endAt, time.Millisecond) {
		t.Errorf("patched end = %v, want %v", events[0].EndTime, endAt)
	}
	if events[0].Mode != metadata.ModePersistent {
		t.Errorf("mode = %v, want persistent", events[0].Mode)
	}
}

func TestQueryTagEventsOverlap(t *testing.T) {
	s := openTestStore(t)

	// Closed event: t0 .. t0+10m
	closedEnd := t0.Add(10 * time.Minute)
	if _, err := s.InsertTagEvent(t0, metadata.TagMusicPlaying, metadata.ModeTimed30s, &closedEnd); err != nil {
		t.Fatal(err)
	}
	// Open event starting at t0+30m
	if _, err := s.InsertTagEvent(t0.Add(30*time.Minute), metadata.TagLoudAmbient, metadata.ModePersistent, nil); err != nil {
		t.Fatal(err)
	}

	// A window after the closed event but before the open one sees nothing.
	start := t0.Add(15 * time.Minute)
	end := t0.Add(20 * time.Minute)
	events, err := s.QueryTagEvents(&start, &end, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events in empty window, want 0", len(events))
	}

	// A window overlapping the closed event's tail sees it.
	start = t0.Add(5 * time.Minute)
	end = t0.Add(20 * time.Minute)
	events, err = s.QueryTagEvents(&start, &end, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Tag != metadata.TagMusicPlaying {
		t.Errorf("overlap window returned %v", events)
	}

	// An open event overlaps any window after its start.
	start = t0.Add(40 * time.Minute)
	end = t0.Add(50 * time.Minute)
	events, err = s.QueryTagEvents(&start, &end, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Tag != metadata.TagLoudAmbient {
		t.Errorf("open event window returned %v", events)
	}

	// Tag filter.
	events, err = s.QueryTagEvents(nil, nil, metadata.TagMusicPlaying)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Tag != metadata.TagMusicPlaying {
		t.Errorf("tag filter returned %v", events)
	}
}

func TestActiveAt(t *testing.T) {
	end := t0.Add(time.Minute)
	closed := TagEvent{StartTime: t0, EndTime: &end}
	open := TagEvent{StartTime: t0}

	if closed.ActiveAt(t0.Add(-time.Second)) {
		t.Error("event active before its start")
	}
	if !closed.ActiveAt(t0) {
		t.Error("event inactive at its start")
	}
	if !closed.ActiveAt(end) {
		t.Error("event inactive at its end boundary")
	}
	if closed.ActiveAt(end.Add(time.Second)) {
		t.Error("event active after its end")
	}
	if !open.ActiveAt(t0.Add(time.Hour)) {
		t.Error("open event should be active indefinitely")
	}
}

func TestMetricsWithTags(t *testing.T) {
	s := openTestStore(t)

	var samples []MetricSample
	for i := 0; i < 10; i++ {
		samples = append(samples, MetricSample{
			Timestamp:  t0.Add(time.Duration(i) * time.Second),
			RMSPercent: 1.0,
			Speech:     true,
		})
	}
	if err := s.InsertMetricsBatch(samples); err != nil {
		t.Fatal(err)
	}

	// Tag covering seconds 3..6.
	tagEnd := t0.Add(6 * time.Second)
	if _, err := s.InsertTagEvent(t0.Add(3*time.Second), metadata.TagOneSpeakerClose, metadata.ModeTimed30s, &tagEnd); err != nil {
		t.Fatal(err)
	}

	tagged, err := s.MetricsWithTags(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tagged) != 10 {
		t.Fatalf("got %d tagged samples, want 10", len(tagged))
	}

	for i, ts := range tagged {
		inWindow := i >= 3 && i <= 6
		if inWindow && len(ts.ActiveTags) != 1 {
			t.Errorf("sample %d should carry the tag, got %v", i, ts.ActiveTags)
		}
		if !inWindow && len(ts.ActiveTags) != 0 {
			t.Errorf("sample %d should carry no tags, got %v", i, ts.ActiveTags)
		}
	}
}

func TestCleanup(t *testing.T) {
	s := openTestStore(t)

	now := t0.Add(10 * 24 * time.Hour)

	var samples []MetricSample
	// 5 old samples (11 days before now), 5 recent.
	for i := 0; i < 5; i++ {
		samples = append(samples, MetricSample{Timestamp: now.Add(-11 * 24 * time.Hour), RMSPercent: 1})
		samples = append(samples, MetricSample{Timestamp: now.Add(-time.Hour), RMSPercent: 1})
	}
	if err := s.InsertMetricsBatch(samples); err != nil {
		t.Fatal(err)
	}

	if _, err := s.InsertTagEvent(now.Add(-11*24*time.Hour), metadata.TagMusicPlaying, metadata.ModeTimed30s, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertTagEvent(now.Add(-time.Hour), metadata.TagMusicPlaying, metadata.ModeTimed30s, nil); err != nil {
		t.Fatal(err)
	}

	metricsDeleted, eventsDeleted, err := s.Cleanup(7, now)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if metricsDeleted != 5 {
		t.Errorf("metrics deleted = %d, want 5", metricsDeleted)
	}
	if eventsDeleted != 1 {
		t.Errorf("events deleted = %d, want 1", eventsDeleted)
	}

	remaining, err := s.QueryMetrics(nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 5 {
		t.Errorf("got %d remaining samples, want 5", len(remaining))
	}
}

func TestCleanupRejectsNonPositiveDays(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.Cleanup(0, t0); err == nil {
		t.Error("expected error for zero retention days")
	}
}

func TestStatistics(t *testing.T) {
	s := openTestStore(t)

	samples := []MetricSample{
		{Timestamp: t0, RMSPercent: 1.0, Speech: false},
		{Timestamp: t0.Add(time.Second), RMSPercent: 3.0, Speech: true},
		{Timestamp: t0.Add(2 * time.Second), RMSPercent: 5.0, Speech: true},
		{Timestamp: t0.Add(3 * time.Second), RMSPercent: 7.0, Speech: false},
	}
	if err := s.InsertMetricsBatch(samples); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertTagEvent(t0, metadata.TagTwoSpeakers, metadata.ModePersistent, nil); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}

	if stats.MetricsCount != 4 {
		t.Errorf("metrics count = %d, want 4", stats.MetricsCount)
	}
	if stats.SpeechFrames != 2 || stats.SilenceFrames != 2 {
		t.Errorf("speech/silence = %d/%d, want 2/2", stats.SpeechFrames, stats.SilenceFrames)
	}
	if stats.SpeechRatio != 50.0 {
		t.Errorf("speech ratio = %f, want 50", stats.SpeechRatio)
	}
	if stats.RMSMin != 1.0 || stats.RMSMax != 7.0 || stats.RMSAvg != 4.0 {
		t.Errorf("rms min/max/avg = %f/%f/%f", stats.RMSMin, stats.RMSMax, stats.RMSAvg)
	}
	if stats.EventCount != 1 || stats.UniqueTags != 1 {
		t.Errorf("events = %d, unique = %d", stats.EventCount, stats.UniqueTags)
	}
	if stats.TagDistribution[metadata.TagTwoSpeakers] != 1 {
		t.Errorf("tag distribution = %v", stats.TagDistribution)
	}
	if stats.DatabaseSizeBytes <= 0 {
		t.Error("database size should be positive")
	}
}

func TestAudioChunkStorage(t *testing.T) {
	s := openTestStore(t)

	chunk := []byte{1, 2, 3, 4}
	err := s.InsertMetricsBatch([]MetricSample{{Timestamp: t0, RMSPercent: 1, Frame: chunk}})
	if err != nil {
		t.Fatal(err)
	}

	// QueryMetrics deliberately skips the blob column; just verify the row
	// landed.
	got, err := s.QueryMetrics(nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d samples, want 1", len(got))
	}
}
