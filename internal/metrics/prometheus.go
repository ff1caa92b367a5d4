package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the audio daemons. A nil
// *Metrics is valid and records nothing, so instrumentation points never
// have to check whether metrics are enabled.
type Metrics struct {
	// Frame pipeline metrics
	FramesProcessed prometheus.Counter
	SpeechFrames    prometheus.Counter
	RMSLevel        prometheus.Histogram
	DetectorErrors  prometheus.Counter

	// Segment lifecycle metrics
	SegmentsStarted   prometheus.Counter
	SegmentsFinalized prometheus.Counter
	SegmentsDiscarded prometheus.Counter
	SegmentDuration   prometheus.Histogram

	// Telemetry store metrics
	BatchFlushes     prometheus.Counter
	BatchFlushErrors prometheus.Counter
	BatchSize        prometheus.Histogram

	// Tag metrics
	ActiveTags    prometheus.Gauge
	TagsActivated *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_frames_processed_total",
			Help: "Total number of audio frames classified",
		}),
		SpeechFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_speech_frames_total",
			Help: "Total number of frames classified as speech",
		}),
		RMSLevel: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_rms_level_percent",
			Help:    "Distribution of per-frame RMS levels as percent of full scale",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25, 50, 100},
		}),
		DetectorErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_detector_errors_total",
			Help: "Total number of voice detector failures handled by RMS fallback",
		}),

		SegmentsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_segments_started_total",
			Help: "Total number of recording segments started",
		}),
		SegmentsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_segments_finalized_total",
			Help: "Total number of recording segments finalized to storage",
		}),
		SegmentsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_segments_discarded_total",
			Help: "Total number of segments discarded as empty or too short",
		}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_segment_duration_seconds",
			Help:    "Duration of finalized recording segments",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		}),

		BatchFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_metric_batch_flushes_total",
			Help: "Total number of telemetry batches written to the database",
		}),
		BatchFlushErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_metric_batch_flush_errors_total",
			Help: "Total number of failed telemetry batch writes",
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_metric_batch_size_samples",
			Help:    "Number of samples per telemetry batch write",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),

		ActiveTags: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "audio_active_tags",
			Help: "Current number of active metadata tags",
		}),
		TagsActivated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_tags_activated_total",
			Help: "Total number of tag activations by tag type",
		}, []string{"tag"}),
	}
}

// RecordFrame records one classified frame.
func (m *Metrics) RecordFrame(speech bool, rmsPercent float64) {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
	m.RMSLevel.Observe(rmsPercent)
	if speech {
		m.SpeechFrames.Inc()
	}
}

// RecordDetectorError records one detector failure.
func (m *Metrics) RecordDetectorError() {
	if m == nil {
		return
	}
	m.DetectorErrors.Inc()
}

// RecordSegmentStarted records a new segment attempt.
func (m *Metrics) RecordSegmentStarted() {
	if m == nil {
		return
	}
	m.SegmentsStarted.Inc()
}

// RecordSegmentFinalized records a finalized segment and its duration.
func (m *Metrics) RecordSegmentFinalized(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsFinalized.Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordSegmentDiscarded records a discarded segment.
func (m *Metrics) RecordSegmentDiscarded() {
	if m == nil {
		return
	}
	m.SegmentsDiscarded.Inc()
}

// RecordBatchFlush records one telemetry batch write attempt.
func (m *Metrics) RecordBatchFlush(samples int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.BatchFlushErrors.Inc()
		return
	}
	m.BatchFlushes.Inc()
	m.BatchSize.Observe(float64(samples))
}

// RecordTagActivated records a tag activation.
func (m *Metrics) RecordTagActivated(tag string) {
	if m == nil {
		return
	}
	m.TagsActivated.WithLabelValues(tag).Inc()
}

// SetActiveTags updates the active tag gauge.
func (m *Metrics) SetActiveTags(count int) {
	if m == nil {
		return
	}
	m.ActiveTags.Set(float64(count))
}

// Serve exposes the /metrics endpoint on addr in a background goroutine.
func Serve(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics endpoint listening", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}
