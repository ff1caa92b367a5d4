package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/robin-collins/arecordd/internal/audio"
	"github.com/robin-collins/arecordd/internal/metrics"
	"github.com/robin-collins/arecordd/internal/vad"
)

// State represents the recorder's position in the segment lifecycle.
type State int

const (
	StateIdle State = iota
	StateWaitingForSound
	StateRecording
	StateFinalizing
	StateAborting
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForSound:
		return "waiting_for_sound"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateAborting:
		return "aborting"
	default:
		return "unknown"
	}
}

// errSegmentDiscarded marks a segment dropped by the size or duration
// checks. The caller retries immediately: the encoder's leading-silence
// behavior means the next attempt costs nothing while the room is quiet.
var errSegmentDiscarded = errors.New("segment discarded")

// errAborted marks a shutdown-requested exit from the record loop.
var errAborted = errors.New("recording aborted")

// FrameSource is a running capture process: a raw PCM stream plus
// lifecycle control.
type FrameSource interface {
	Output() io.Reader
	Running() bool
	Stop(grace time.Duration) error
}

// EncoderSink is a running encoder process consuming raw PCM.
type EncoderSink interface {
	Write(p []byte) (int, error)
	CloseInput() error
	Wait(grace time.Duration) error
	Stop(grace time.Duration) error
}

// FileOps abstracts the sox-backed file operations used during
// finalization.
type FileOps interface {
	TrimTail(src, dst string, tail time.Duration) error
	Concat(first, second, dst string) error
	Duration(path string) (time.Duration, error)
}

// FrameClassifier scores one frame as speech or silence.
type FrameClassifier interface {
	Classify(frame []byte) vad.Verdict
}

// Config contains segment recorder parameters.
type Config struct {
	StorageDir        string
	FilePrefix        string
	SampleRate        int
	CompressionFormat string

	FrameBytes    int
	FrameDuration time.Duration

	MinDuration     time.Duration
	MaxDuration     time.Duration
	SilenceDuration time.Duration
	OverlapDuration time.Duration

	// MinSegmentBytes is the byte-size sanity threshold below which a
	// finished file is considered empty.
	MinSegmentBytes int64
	// GracePeriod bounds graceful subprocess termination before kill.
	GracePeriod time.Duration
	// RetryDelay is the backoff after a process-level failure. Discarded
	// short segments retry immediately instead.
	RetryDelay time.Duration
}

// Dependencies are the recorder's external collaborators, injectable for
// testing.
type Dependencies struct {
	StartCapture func() (FrameSource, error)
	StartEncoder func(outputPath string) (EncoderSink, error)
	Files        FileOps
	Classifier   FrameClassifier
	Metrics      *metrics.Metrics
}

// Recorder drives the capture -> classify -> encode loop and the segment
// file lifecycle, including cross-segment overlap continuity.
type Recorder struct {
	config Config
	deps   Dependencies
	logger *slog.Logger

	// now is the clock; replaced in tests.
	now func() time.Time

	state State

	// overlapPath is the trailing-audio buffer carved from the most
	// recently finalized segment, consumed by the next finalization.
	overlapPath string
}

// NewRecorder creates a segment recorder.
func NewRecorder(config Config, deps Dependencies, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}

	if config.MinSegmentBytes == 0 {
		config.MinSegmentBytes = 1000
	}

	if config.GracePeriod == 0 {
		config.GracePeriod = 5 * time.Second
	}

	if config.RetryDelay == 0 {
		config.RetryDelay = 10 * time.Second
	}

	return &Recorder{
		config: config,
		deps:   deps,
		logger: logger,
		now:    time.Now,
		state:  StateIdle,
	}
}

// State returns the recorder's current state.
func (r *Recorder) State() State {
	return r.state
}

// Run executes the continuous recording loop until the context is
// cancelled. Recoverable per-segment failures are logged and the loop
// proceeds; only the caller's startup validation is fatal.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Info("segment recorder started",
		slog.String("storage", r.config.StorageDir),
		slog.Duration("min_duration", r.config.MinDuration),
		slog.Duration("max_duration", r.config.MaxDuration),
	)

	for {
		if ctx.Err() != nil {
			r.abortCleanup()
			r.logger.Info("segment recorder stopped")
			return nil
		}

		r.state = StateIdle
		seg := NewSegment(r.config.StorageDir, r.config.FilePrefix, r.config.SampleRate,
			r.config.CompressionFormat, r.now())

		err := r.recordSegment(ctx, seg)
		switch {
		case err == nil:
			// Finalized; next segment begins immediately.

		case errors.Is(err, errAborted):
			r.abortCleanup()
			r.logger.Info("segment recorder stopped")
			return nil

		case errors.Is(err, errSegmentDiscarded):
			r.logger.Warn("segment discarded, retrying immediately", slog.String("reason", err.Error()))
			r.deps.Metrics.RecordSegmentDiscarded()

		default:
			r.logger.Error("recording failed, backing off",
				slog.String("error", err.Error()),
				slog.Duration("delay", r.config.RetryDelay),
			)
			select {
			case <-ctx.Done():
			case <-time.After(r.config.RetryDelay):
			}
		}
	}
}

// recordSegment runs one full segment cycle: start the external
// processes, pump frames through the classifier into the encoder, and
// finalize when the silence rule, the duration cap, shutdown, or capture
// death ends it.
func (r *Recorder) recordSegment(ctx context.Context, seg *Segment) error {
	source, err := r.deps.StartCapture()
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	encoder, err := r.deps.StartEncoder(seg.TempPath)
	if err != nil {
		source.Stop(r.config.GracePeriod)
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	reader := audio.NewFrameReader(source.Output(), r.config.FrameBytes, 8)
	reader.Start()
	defer reader.Stop()

	r.state = StateWaitingForSound
	r.logger.Info("waiting for sound", slog.String("segment", seg.FinalPath))
	r.deps.Metrics.RecordSegmentStarted()

	var (
		soundStart   time.Time // zero until the first speech verdict
		silenceStart time.Time // zero while speech is running
	)

	for r.state == StateWaitingForSound || r.state == StateRecording {
		select {
		case <-ctx.Done():
			r.state = StateAborting
			r.abortSegment(seg, source, encoder)
			return errAborted

		case frame, ok := <-reader.Frames():
			if !ok {
				// Capture process died; finalize with whatever was
				// produced rather than propagating a fatal error.
				if err := reader.Err(); err != nil {
					r.logger.Warn("capture stream error", slog.String("error", err.Error()))
				} else {
					r.logger.Warn("capture process ended unexpectedly")
				}
				r.state = StateFinalizing
				continue
			}

			now := r.now()

			// Nothing is discarded once encoding starts: every frame is
			// written, speech or not.
			if _, err := encoder.Write(frame.Data); err != nil {
				r.logger.Error("encoder write failed", slog.String("error", err.Error()))
				r.state = StateFinalizing
				continue
			}

			verdict := r.deps.Classifier.Classify(frame.Data)
			r.deps.Metrics.RecordFrame(verdict.Speech, verdict.RMSPercent)

			switch r.state {
			case StateWaitingForSound:
				if verdict.Speech {
					// The elapsed-duration clock starts here, not at
					// process launch.
					soundStart = now
					silenceStart = time.Time{}
					r.state = StateRecording
					r.logger.Info("sound detected, recording", slog.String("segment", seg.FinalPath))
				}

			case StateRecording:
				if verdict.Speech {
					silenceStart = time.Time{}
				} else {
					if silenceStart.IsZero() {
						silenceStart = now
					}
					// Silence before MinDuration never stops a segment.
					if now.Sub(silenceStart) >= r.config.SilenceDuration &&
						now.Sub(soundStart) >= r.config.MinDuration {
						r.logger.Info("silence threshold reached, finalizing")
						r.state = StateFinalizing
						continue
					}
				}

				// Hard cap regardless of classifier state.
				if now.Sub(soundStart) >= r.config.MaxDuration {
					r.logger.Info("maximum duration reached, finalizing")
					r.state = StateFinalizing
				}
			}
		}
	}

	return r.finalize(seg, source, encoder, soundStart)
}

// finalize closes down the external processes, applies the size and
// duration checks, merges the pending overlap buffer, relocates the file
// to final storage, and derives the next overlap buffer.
func (r *Recorder) finalize(seg *Segment, source FrameSource, encoder EncoderSink, soundStart time.Time) error {
	r.state = StateFinalizing

	if err := encoder.CloseInput(); err != nil {
		r.logger.Debug("encoder input close", slog.String("error", err.Error()))
	}

	if err := encoder.Wait(r.config.GracePeriod); err != nil {
		r.logger.Warn("encoder did not exit cleanly", slog.String("error", err.Error()))
	}

	if err := source.Stop(r.config.GracePeriod); err != nil {
		r.logger.Warn("capture did not exit cleanly", slog.String("error", err.Error()))
	}

	info, err := os.Stat(seg.TempPath)
	if err != nil || info.Size() < r.config.MinSegmentBytes {
		if err == nil {
			os.Remove(seg.TempPath)
		}
		return fmt.Errorf("%w: output missing or below size threshold", errSegmentDiscarded)
	}

	duration, err := r.deps.Files.Duration(seg.TempPath)
	if err != nil {
		// Keep the segment: a probe failure is not evidence the audio is
		// bad. Fall back to the wall-clock estimate.
		r.logger.Warn("duration probe failed, using wall clock", slog.String("error", err.Error()))
		if !soundStart.IsZero() {
			duration = r.now().Sub(soundStart)
		}
	}

	if duration < r.config.MinDuration {
		os.Remove(seg.TempPath)
		return fmt.Errorf("%w: duration %s below minimum %s", errSegmentDiscarded, duration, r.config.MinDuration)
	}

	r.mergeOverlap(seg)

	if err := os.Rename(seg.TempPath, seg.FinalPath); err != nil {
		// Retain the temp copy for manual recovery and keep the loop
		// alive.
		r.logger.Error("failed to relocate segment",
			slog.String("temp", seg.TempPath),
			slog.String("final", seg.FinalPath),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("relocate segment: %w", err)
	}

	r.logger.Info("segment finalized",
		slog.String("path", seg.FinalPath),
		slog.Duration("duration", duration),
	)
	r.deps.Metrics.RecordSegmentFinalized(duration.Seconds())

	r.deriveOverlap(seg)
	r.state = StateIdle
	return nil
}

// mergeOverlap prepends the pending overlap buffer to the new segment's
// temp file. The buffer is consumed (deleted) exactly once whether or not
// the merge succeeds; a failed merge keeps the unmerged segment.
func (r *Recorder) mergeOverlap(seg *Segment) {
	if r.overlapPath == "" || !pathExists(r.overlapPath) {
		r.overlapPath = ""
		return
	}

	merged := seg.TempPath + ".merged"
	if err := r.deps.Files.Concat(r.overlapPath, seg.TempPath, merged); err != nil {
		r.logger.Warn("overlap merge failed, keeping unmerged segment", slog.String("error", err.Error()))
	} else if err := os.Rename(merged, seg.TempPath); err != nil {
		r.logger.Warn("overlap merge rename failed", slog.String("error", err.Error()))
		os.Remove(merged)
	} else {
		r.logger.Info("merged overlap into segment", slog.String("segment", seg.TempPath))
	}

	os.Remove(r.overlapPath)
	r.overlapPath = ""
}

// deriveOverlap trims the tail of the just-finalized file into temp
// storage for the next segment. Best effort: a failure only costs
// continuity, not the segment.
func (r *Recorder) deriveOverlap(seg *Segment) {
	if r.config.OverlapDuration <= 0 {
		return
	}

	dst := OverlapPath(r.config.StorageDir, r.config.CompressionFormat)
	if err := r.deps.Files.TrimTail(seg.FinalPath, dst, r.config.OverlapDuration); err != nil {
		r.logger.Warn("failed to create overlap buffer", slog.String("error", err.Error()))
		os.Remove(dst)
		return
	}

	r.overlapPath = dst
	r.logger.Info("overlap buffer created",
		slog.String("path", dst),
		slog.Duration("duration", r.config.OverlapDuration),
	)
}

// abortSegment tears down the external processes and removes the partial
// temp file on shutdown.
func (r *Recorder) abortSegment(seg *Segment, source FrameSource, encoder EncoderSink) {
	encoder.Stop(r.config.GracePeriod)
	source.Stop(r.config.GracePeriod)
	os.Remove(seg.TempPath)
}

// abortCleanup removes transient artifacts so shutdown never leaks
// storage.
func (r *Recorder) abortCleanup() {
	if r.overlapPath != "" {
		os.Remove(r.overlapPath)
		r.overlapPath = ""
	}
}
