package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robin-collins/arecordd/internal/capture"
	"github.com/robin-collins/arecordd/internal/config"
	"github.com/robin-collins/arecordd/internal/metrics"
	"github.com/robin-collins/arecordd/internal/recorder"
	"github.com/robin-collins/arecordd/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "recorderd"
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

	// Log configuration summary
	logger.Info("Configuration loaded",
		slog.String("device", cfg.Audio.Device),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.String("format", cfg.Audio.CompressionFormat),
		slog.String("silence_threshold", cfg.Audio.SilenceThreshold),
		slog.Duration("silence_duration", cfg.Audio.SilenceDuration()),
		slog.Duration("min_duration", cfg.Recording.MinDuration()),
		slog.Duration("max_duration", cfg.Recording.MaxDuration()),
		slog.Duration("overlap", cfg.Recording.OverlapDuration()),
		slog.Bool("vad_enabled", cfg.VAD.Enabled),
		slog.String("storage", cfg.Storage.Directory),
		slog.String("log_level", cfg.Logging.Level),
	)

	// External collaborators and storage must work before the loop starts
	if err := capture.Probe(logger); err != nil {
		logger.Error("Dependency check failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := recorder.ValidateStorage(cfg.Storage.Directory); err != nil {
		logger.Error("Storage check failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *validateOnly {
		logger.Info("Validation successful")
		return
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

	rec := recorder.NewRecorder(recorder.Config{
		StorageDir:        cfg.Storage.Directory,
		FilePrefix:        cfg.Storage.FilePrefix,
		SampleRate:        cfg.Audio.SampleRate,
		CompressionFormat: cfg.Audio.CompressionFormat,
		FrameBytes:        cfg.Audio.FrameBytes(cfg.VAD.FrameDurationMs),
		FrameDuration:     cfg.VAD.FrameDuration(),
		MinDuration:       cfg.Recording.MinDuration(),
		MaxDuration:       cfg.Recording.MaxDuration(),
		SilenceDuration:   cfg.Audio.SilenceDuration(),
		OverlapDuration:   cfg.Recording.OverlapDuration(),
	}, recorder.Dependencies{
		StartCapture: func() (recorder.FrameSource, error) {
			return capture.StartCapture(capture.Config{
				Device:     cfg.Audio.Device,
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
			}, logger)
		},
		StartEncoder: func(outputPath string) (recorder.EncoderSink, error) {
			return capture.StartEncoder(capture.EncoderConfig{
				SampleRate:        cfg.Audio.SampleRate,
				Channels:          cfg.Audio.Channels,
				CompressionFormat: cfg.Audio.CompressionFormat,
			}, outputPath, logger)
		},
		Files:      recorder.SoxFiles{},
		Classifier: classifier,
		Metrics:    appMetrics,
	}, logger)

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

	if err := rec.Run(ctx); err != nil {
		logger.Error("Recorder failed", slog.String("error", err.Error()))
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
