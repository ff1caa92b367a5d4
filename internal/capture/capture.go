package capture

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// Config contains capture source parameters.
type Config struct {
	Device     string
	SampleRate int
	Channels   int
}

// Capture represents a running arecord subprocess producing a continuous
// raw S16_LE PCM stream on its stdout.
type Capture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	logger *slog.Logger

	done    chan struct{}
	waitErr error
}

// StartCapture launches the capture process. The returned Capture's Output
// stream ends when the process dies or is stopped.
func StartCapture(config Config, logger *slog.Logger) (*Capture, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command("arecord",
		"-D", config.Device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(config.SampleRate),
		"-c", strconv.Itoa(config.Channels),
		"-t", "raw",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open capture stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture process: %w", err)
	}

	c := &Capture{
		cmd:    cmd,
		stdout: stdout,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()

	logger.Info("capture process started",
		slog.String("device", config.Device),
		slog.Int("sample_rate", config.SampleRate),
		slog.Int("channels", config.Channels),
		slog.Int("pid", cmd.Process.Pid),
	)

	return c, nil
}

// Output returns the raw PCM stream.
func (c *Capture) Output() io.Reader {
	return c.stdout
}

// Running reports whether the capture process is still alive.
func (c *Capture) Running() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Stop requests graceful termination and force-kills after the grace
// period expires.
func (c *Capture) Stop(grace time.Duration) error {
	return stopProcess(c.cmd, c.done, grace, c.logger, "capture")
}

// stopProcess terminates a managed subprocess: SIGTERM, bounded wait,
// then SIGKILL. done must be closed by the process's Wait goroutine.
func stopProcess(cmd *exec.Cmd, done <-chan struct{}, grace time.Duration, logger *slog.Logger, name string) error {
	select {
	case <-done:
		return nil // already exited
	default:
	}

	if err := cmd.Process.Signal(terminateSignal); err != nil {
		// Process may have exited between the check and the signal.
		select {
		case <-done:
			return nil
		default:
			return fmt.Errorf("failed to terminate %s process: %w", name, err)
		}
	}

	select {
	case <-done:
		return nil
	case <-time.After(grace):
	}

	logger.Warn("process did not terminate within grace period, killing",
		slog.String("process", name),
		slog.Duration("grace", grace),
	)

	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill %s process: %w", name, err)
	}

	<-done
	return nil
}
