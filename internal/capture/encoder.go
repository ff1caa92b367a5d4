package capture

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// EncoderConfig contains encoder sink parameters.
type EncoderConfig struct {
	SampleRate        int
	Channels          int
	CompressionFormat string // "wav", "flac" or "ogg"
}

// Encoder represents a running sox subprocess that consumes raw PCM on
// stdin and writes a container file to the output path.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	path   string
	logger *slog.Logger

	done    chan struct{}
	waitErr error
}

// StartEncoder launches the encoder process writing to outputPath. The
// output format is selected by the path's extension; non-WAV formats use
// sox's default compression level.
func StartEncoder(config EncoderConfig, outputPath string, logger *slog.Logger) (*Encoder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	args := []string{
		"-t", "raw",
		"-r", strconv.Itoa(config.SampleRate),
		"-e", "signed",
		"-b", "16",
		"-c", strconv.Itoa(config.Channels),
		"-",
	}

	if config.CompressionFormat != "wav" {
		args = append(args, "-C", "0")
	}

	args = append(args, outputPath)

	cmd := exec.Command("sox", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder process: %w", err)
	}

	e := &Encoder{
		cmd:    cmd,
		stdin:  stdin,
		path:   outputPath,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		e.waitErr = cmd.Wait()
		close(e.done)
	}()

	logger.Debug("encoder process started",
		slog.String("output", outputPath),
		slog.String("format", config.CompressionFormat),
		slog.Int("pid", cmd.Process.Pid),
	)

	return e, nil
}

// Write sends raw PCM bytes to the encoder.
func (e *Encoder) Write(p []byte) (int, error) {
	return e.stdin.Write(p)
}

// CloseInput signals end-of-stream so the encoder can flush its output
// file. Safe to call after the process has already exited.
func (e *Encoder) CloseInput() error {
	return e.stdin.Close()
}

// Running reports whether the encoder process is still alive.
func (e *Encoder) Running() bool {
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the encoder exits or the grace period elapses, then
// escalates to termination and kill. Call after CloseInput.
func (e *Encoder) Wait(grace time.Duration) error {
	select {
	case <-e.done:
		return e.waitErr
	case <-time.After(grace):
	}

	if err := stopProcess(e.cmd, e.done, grace, e.logger, "encoder"); err != nil {
		return err
	}

	return e.waitErr
}

// Stop terminates the encoder without waiting for a clean flush.
func (e *Encoder) Stop(grace time.Duration) error {
	e.stdin.Close()
	return stopProcess(e.cmd, e.done, grace, e.logger, "encoder")
}
