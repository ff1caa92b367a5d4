package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration shared by the
// recorder daemon, the data collector and the analysis CLI.
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	VAD       VADConfig       `yaml:"vad"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Display   DisplayConfig   `yaml:"display"`
}

// AudioConfig contains capture-device and classifier threshold parameters.
type AudioConfig struct {
	Device                 string  `yaml:"device"`
	SampleRate             int     `yaml:"sample_rate"`
	Channels               int     `yaml:"channels"`
	CompressionFormat      string  `yaml:"compression_format"`
	SilenceThreshold       string  `yaml:"silence_threshold"` // percent, e.g. "1%" or "1.5"
	SilenceDurationSeconds float64 `yaml:"silence_duration_seconds"`
}

// RecordingConfig contains segment duration parameters.
type RecordingConfig struct {
	MaxDurationMinutes int `yaml:"max_duration_minutes"`
	MinDurationSeconds int `yaml:"min_duration_seconds"`
	OverlapMinutes     int `yaml:"overlap_minutes"`
}

// VADConfig contains native voice-activity-detection configuration.
type VADConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Aggressiveness      int    `yaml:"aggressiveness"`
	FrameDurationMs     int    `yaml:"frame_duration_ms"`
	NoiseFloorThreshold string `yaml:"noise_floor_threshold"` // percent
}

// DatabaseConfig contains telemetry store configuration.
type DatabaseConfig struct {
	Path                 string  `yaml:"path"`
	RetentionDays        int     `yaml:"retention_days"` // 0 = keep all
	BatchIntervalSeconds float64 `yaml:"batch_interval_seconds"`
	BatchMaxSamples      int     `yaml:"batch_max_samples"`
}

// StorageConfig contains segment storage configuration.
type StorageConfig struct {
	Directory        string `yaml:"directory"`
	FilePrefix       string `yaml:"file_prefix"`
	StoreAudioChunks bool   `yaml:"store_audio_chunks"`
}

// MetricsConfig contains Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DisplayConfig contains collector status-line configuration.
type DisplayConfig struct {
	StatusIntervalSeconds float64 `yaml:"status_interval_seconds"`
	DetailedMetrics       bool    `yaml:"detailed_metrics"`
}

// Sample rates and frame durations accepted by the native detector.
var (
	detectorSampleRates = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}
	detectorFrameMs     = map[int]bool{10: true, 20: true, 30: true}
)

// Load reads, parses, validates and normalizes the configuration file.
// The returned warnings describe normalizations applied (currently only
// forcing RMS-fallback mode for detector-incompatible audio parameters)
// and should be logged by the caller.
func Load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	warnings := config.normalize()
	return config, warnings, nil
}

// Default returns a configuration populated with the documented defaults.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Device:                 "default",
			SampleRate:             16000,
			Channels:               1,
			CompressionFormat:      "wav",
			SilenceThreshold:       "1%",
			SilenceDurationSeconds: 2.0,
		},
		Recording: RecordingConfig{
			MaxDurationMinutes: 60,
			MinDurationSeconds: 45,
			OverlapMinutes:     5,
		},
		VAD: VADConfig{
			Enabled:             true,
			Aggressiveness:      2,
			FrameDurationMs:     30,
			NoiseFloorThreshold: "0.5%",
		},
		Database: DatabaseConfig{
			Path:                 "vad_data.db",
			RetentionDays:        0,
			BatchIntervalSeconds: 5.0,
			BatchMaxSamples:      200,
		},
		Storage: StorageConfig{
			Directory:  "/mnt/shared/raspi-audio",
			FilePrefix: "audio",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9310",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Display: DisplayConfig{
			StatusIntervalSeconds: 1.0,
			DetailedMetrics:       true,
		},
	}
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Display.Validate(); err != nil {
		return fmt.Errorf("display config: %w", err)
	}

	return nil
}

// normalize downgrades configuration combinations the native detector
// cannot serve to RMS-fallback mode instead of rejecting them. Returns
// human-readable warnings for each adjustment.
func (c *Config) normalize() []string {
	var warnings []string

	if c.VAD.Enabled && !c.DetectorCompatible() {
		c.VAD.Enabled = false
		warnings = append(warnings, fmt.Sprintf(
			"native detector disabled: sample_rate=%d channels=%d frame_duration_ms=%d outside supported set, using RMS fallback",
			c.Audio.SampleRate, c.Audio.Channels, c.VAD.FrameDurationMs))
	}

	return warnings
}

// DetectorCompatible reports whether the configured audio parameters fall
// inside the native detector's supported (sampleRate, frameDuration) set.
func (c *Config) DetectorCompatible() bool {
	return detectorSampleRates[c.Audio.SampleRate] &&
		detectorFrameMs[c.VAD.FrameDurationMs] &&
		c.Audio.Channels == 1
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.Device == "" {
		return fmt.Errorf("device cannot be empty")
	}

	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	switch a.CompressionFormat {
	case "wav", "flac", "ogg":
	default:
		return fmt.Errorf("compression_format must be one of [wav, flac, ogg], got %q", a.CompressionFormat)
	}

	if _, err := ParsePercent(a.SilenceThreshold); err != nil {
		return fmt.Errorf("silence_threshold: %w", err)
	}

	if a.SilenceDurationSeconds <= 0 {
		return fmt.Errorf("silence_duration_seconds must be positive, got %f", a.SilenceDurationSeconds)
	}

	return nil
}

// Validate validates recording configuration.
func (r *RecordingConfig) Validate() error {
	if r.MaxDurationMinutes < 1 {
		return fmt.Errorf("max_duration_minutes must be at least 1, got %d", r.MaxDurationMinutes)
	}

	if r.MinDurationSeconds < 0 {
		return fmt.Errorf("min_duration_seconds cannot be negative, got %d", r.MinDurationSeconds)
	}

	if time.Duration(r.MinDurationSeconds)*time.Second > r.MaxDuration() {
		return fmt.Errorf("min_duration_seconds (%d) exceeds max_duration_minutes (%d)",
			r.MinDurationSeconds, r.MaxDurationMinutes)
	}

	if r.OverlapMinutes < 0 {
		return fmt.Errorf("overlap_minutes cannot be negative, got %d", r.OverlapMinutes)
	}

	return nil
}

// Validate validates VAD configuration.
func (v *VADConfig) Validate() error {
	if v.Aggressiveness < 0 || v.Aggressiveness > 3 {
		return fmt.Errorf("aggressiveness must be between 0 and 3, got %d", v.Aggressiveness)
	}

	if v.FrameDurationMs <= 0 {
		return fmt.Errorf("frame_duration_ms must be positive, got %d", v.FrameDurationMs)
	}

	if _, err := ParsePercent(v.NoiseFloorThreshold); err != nil {
		return fmt.Errorf("noise_floor_threshold: %w", err)
	}

	return nil
}

// Validate validates database configuration.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if d.RetentionDays < 0 {
		return fmt.Errorf("retention_days cannot be negative, got %d", d.RetentionDays)
	}

	if d.BatchIntervalSeconds <= 0 {
		return fmt.Errorf("batch_interval_seconds must be positive, got %f", d.BatchIntervalSeconds)
	}

	if d.BatchMaxSamples < 1 {
		return fmt.Errorf("batch_max_samples must be at least 1, got %d", d.BatchMaxSamples)
	}

	return nil
}

// Validate validates storage configuration.
func (s *StorageConfig) Validate() error {
	if s.Directory == "" {
		return fmt.Errorf("directory cannot be empty")
	}

	if s.FilePrefix == "" {
		return fmt.Errorf("file_prefix cannot be empty")
	}

	return nil
}

// Validate validates metrics configuration.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.ListenAddress == "" {
		return fmt.Errorf("listen_address cannot be empty when metrics are enabled")
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of [debug, info, warn, error], got %q", l.Level)
	}

	switch l.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("format must be 'json' or 'text', got %q", l.Format)
	}

	return nil
}

// Validate validates display configuration.
func (d *DisplayConfig) Validate() error {
	if d.StatusIntervalSeconds <= 0 {
		return fmt.Errorf("status_interval_seconds must be positive, got %f", d.StatusIntervalSeconds)
	}

	return nil
}

// ParsePercent parses a percentage value that may carry a trailing '%',
// e.g. "1%", "0.5" or "1.5%".
func ParsePercent(s string) (float64, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if trimmed == "" {
		return 0, fmt.Errorf("empty percentage value")
	}

	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage value %q: %w", s, err)
	}

	if v < 0 || v > 100 {
		return 0, fmt.Errorf("percentage value %q out of range [0, 100]", s)
	}

	return v, nil
}

// SilenceThresholdPercent returns the parsed silence threshold.
func (a *AudioConfig) SilenceThresholdPercent() float64 {
	v, _ := ParsePercent(a.SilenceThreshold)
	return v
}

// NoiseFloorPercent returns the parsed noise floor threshold.
func (v *VADConfig) NoiseFloorPercent() float64 {
	p, _ := ParsePercent(v.NoiseFloorThreshold)
	return p
}

// FrameBytes returns the size in bytes of one classifier frame.
func (a *AudioConfig) FrameBytes(frameDurationMs int) int {
	return a.SampleRate * frameDurationMs / 1000 * a.Channels * 2
}

// MaxDuration returns the maximum segment duration.
func (r *RecordingConfig) MaxDuration() time.Duration {
	return time.Duration(r.MaxDurationMinutes) * time.Minute
}

// MinDuration returns the minimum segment duration.
func (r *RecordingConfig) MinDuration() time.Duration {
	return time.Duration(r.MinDurationSeconds) * time.Second
}

// OverlapDuration returns the cross-segment overlap duration.
func (r *RecordingConfig) OverlapDuration() time.Duration {
	return time.Duration(r.OverlapMinutes) * time.Minute
}

// SilenceDuration returns the silence run length that stops a segment.
func (a *AudioConfig) SilenceDuration() time.Duration {
	return time.Duration(a.SilenceDurationSeconds * float64(time.Second))
}

// FrameDuration returns the classifier frame duration.
func (v *VADConfig) FrameDuration() time.Duration {
	return time.Duration(v.FrameDurationMs) * time.Millisecond
}

// BatchInterval returns the store flush interval.
func (d *DatabaseConfig) BatchInterval() time.Duration {
	return time.Duration(d.BatchIntervalSeconds * float64(time.Second))
}

// StatusInterval returns the status-line refresh interval.
func (d *DisplayConfig) StatusInterval() time.Duration {
	return time.Duration(d.StatusIntervalSeconds * float64(time.Second))
}
