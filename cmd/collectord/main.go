package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robin-collins/arecordd/internal/audio"
	"github.com/robin-collins/arecordd/internal/capture"
	"github.com/robin-collins/arecordd/internal/collector"
	"github.com/robin-collins/arecordd/internal/config"
	"github.com/robin-collins/arecordd/internal/metadata"
	"github.com/robin-collins/arecordd/internal/metrics"
	"github.com/robin-collins/arecordd/internal/store"
	"github.com/robin-collins/arecordd/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "collectord"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	validateOnly := flag.Bool("validate", false, "Validate configuration and dependencies, then exit")
	flag.Parse()

	// Load configuration
	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	for _, w := range warnings {
		logger.Warn(w)
	}

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("device", cfg.Audio.Device),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Bool("vad_enabled", cfg.VAD.Enabled),
		slog.String("database", cfg.Database.Path),
		slog.Duration("batch_interval", cfg.Database.BatchInterval()),
		slog.Int("batch_max_samples", cfg.Database.BatchMaxSamples),
		slog.Bool("store_audio_chunks", cfg.Storage.StoreAudioChunks),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Capture device must work before the loop starts
	if err := capture.Probe(logger); err != nil {
		logger.Error("Dependency check failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *validateOnly {
		logger.Info("Validation successful")
		return
	}

	// Open telemetry database
	db, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("Failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// Apply the retention policy at startup so the database never grows
	// unbounded across restarts.
	if cfg.Database.RetentionDays > 0 {
		if _, _, err := db.Cleanup(cfg.Database.RetentionDays, time.Now()); err != nil {
			logger.Warn("Retention cleanup failed", slog.String("error", err.Error()))
		}
	}

	// Initialize Prometheus metrics (optional)
	var appMetrics *metrics.Metrics
	if cfg.Metrics.Enabled {
		appMetrics = metrics.NewMetrics()
		metrics.Serve(cfg.Metrics.ListenAddress, logger)
		logger.Info("Prometheus metrics initialized")
	}

	// Native detector; any failure downgrades to RMS-fallback mode
	var detector vad.Detector
	if cfg.VAD.Enabled {
		d, err := vad.NewWebRTCDetector(cfg.VAD.Aggressiveness)
		if err != nil {
			logger.Error("Native detector unavailable, using RMS fallback",
				slog.String("error", err.Error()))
		} else {
			detector = d
			logger.Info("Native detector initialized",
				slog.Int("aggressiveness", cfg.VAD.Aggressiveness))
		}
	}

	classifier := vad.NewClassifier(vad.Config{
		SampleRate:        cfg.Audio.SampleRate,
		NoiseFloorPercent: cfg.VAD.NoiseFloorPercent(),
		SilencePercent:    cfg.Audio.SilenceThresholdPercent(),
	}, detector, appMetrics, logger)

	tags := metadata.NewManager(db, logger)

	// Start the capture stream
	cap, err := capture.StartCapture(capture.Config{
		Device:     cfg.Audio.Device,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	}, logger)
	if err != nil {
		logger.Error("Failed to start capture", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cap.Stop(5 * time.Second)

	reader := audio.NewFrameReader(cap.Output(), cfg.Audio.FrameBytes(cfg.VAD.FrameDurationMs), 8)
	reader.Start()
	defer reader.Stop()

	// Hotkeys need a terminal; without one, collection runs tag-less
	var keys <-chan rune
	keyboard, err := collector.OpenKeyboard(logger)
	if err != nil {
		logger.Warn("Hotkeys disabled", slog.String("error", err.Error()))
	} else {
		defer keyboard.Close()
		keys = keyboard.Keys()
	}

	col := collector.NewCollector(collector.Config{
		BatchInterval:    cfg.Database.BatchInterval(),
		BatchMaxSamples:  cfg.Database.BatchMaxSamples,
		StatusInterval:   cfg.Display.StatusInterval(),
		StoreAudioChunks: cfg.Storage.StoreAudioChunks,
	}, classifier, db, tags, appMetrics, os.Stdout, logger)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := col.Run(ctx, reader.Frames(), keys); err != nil {
		logger.Error("Collector failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	stats := classifier.GetStats()
	logger.Info("Final classifier statistics",
		slog.Uint64("frames_total", stats.FramesTotal),
		slog.Uint64("speech_frames", stats.SpeechFrames),
		slog.Uint64("detector_errors", stats.DetectorErrors),
	)

	logger.Info("Service stopped")
}

// initLogger creates a structured logger based on the logging configuration.
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
