package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/robin-collins/arecordd/internal/audio"
	"github.com/robin-collins/arecordd/internal/metadata"
	"github.com/robin-collins/arecordd/internal/metrics"
	"github.com/robin-collins/arecordd/internal/store"
	"github.com/robin-collins/arecordd/internal/vad"
)

// MetricSink receives batched telemetry samples.
type MetricSink interface {
	InsertMetricsBatch(samples []store.MetricSample) error
}

// FrameClassifier scores one frame as speech or silence.
type FrameClassifier interface {
	Classify(frame []byte) vad.Verdict
}

// Config contains collector control-loop parameters.
type Config struct {
	BatchInterval    time.Duration
	BatchMaxSamples  int
	StatusInterval   time.Duration
	StoreAudioChunks bool
}

// Collector runs the telemetry control loop: classify incoming frames,
// buffer samples for batched persistence, apply tag hotkeys, and render
// the live status line.
type Collector struct {
	config     Config
	classifier FrameClassifier
	sink       MetricSink
	tags       *metadata.Manager
	metrics    *metrics.Metrics
	logger     *slog.Logger
	out        io.Writer

	// now is the clock; replaced in tests.
	now func() time.Time

	pending []store.MetricSample

	// status line state
	lastVerdict  vad.Verdict
	statusFrames int
}

// NewCollector creates a collector. out receives the interactive status
// output and must tolerate raw-mode line discipline.
func NewCollector(config Config, classifier FrameClassifier, sink MetricSink,
	tags *metadata.Manager, m *metrics.Metrics, out io.Writer, logger *slog.Logger) *Collector {

	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		config:     config,
		classifier: classifier,
		sink:       sink,
		tags:       tags,
		metrics:    m,
		logger:     logger,
		out:        out,
		now:        time.Now,
	}
}

// Run processes frames and keypresses until the context is cancelled,
// the frame channel closes, or Ctrl+C arrives on the key channel. Any
// buffered samples are flushed before returning.
func (c *Collector) Run(ctx context.Context, frames <-chan audio.Frame, keys <-chan rune) error {
	flushTicker := time.NewTicker(c.config.BatchInterval)
	defer flushTicker.Stop()

	statusTicker := time.NewTicker(c.config.StatusInterval)
	defer statusTicker.Stop()

	fmt.Fprint(c.out, helpText)

	for {
		select {
		case <-ctx.Done():
			c.finish()
			return nil

		case frame, ok := <-frames:
			if !ok {
				c.finish()
				return fmt.Errorf("capture stream ended")
			}
			c.handleFrame(frame)

		case key, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if key == keyInterrupt {
				fmt.Fprint(c.out, "\r\n")
				c.logger.Info("interrupt received")
				c.finish()
				return nil
			}
			c.handleKey(key)

		case <-flushTicker.C:
			c.flush()
			c.tags.Sweep(c.now())
			c.metrics.SetActiveTags(len(c.tags.ActiveTags()))

		case <-statusTicker.C:
			c.printStatus()
		}
	}
}

// handleFrame classifies a frame and buffers the resulting sample,
// flushing early when the buffer reaches its size cap. Expired timed tags
// are swept here so expiry lags by at most one frame.
func (c *Collector) handleFrame(frame audio.Frame) {
	c.tags.Sweep(c.now())

	verdict := c.classifier.Classify(frame.Data)
	c.metrics.RecordFrame(verdict.Speech, verdict.RMSPercent)
	c.lastVerdict = verdict
	c.statusFrames++

	sample := store.MetricSample{
		Timestamp:  c.now(),
		RMSPercent: verdict.RMSPercent,
		Speech:     verdict.Speech,
	}
	if c.config.StoreAudioChunks {
		sample.Frame = append([]byte(nil), frame.Data...)
	}

	c.pending = append(c.pending, sample)
	if len(c.pending) >= c.config.BatchMaxSamples {
		c.flush()
	}
}

// handleKey applies a tag hotkey or prints help.
func (c *Collector) handleKey(key rune) {
	if key == 'h' {
		fmt.Fprint(c.out, helpText)
		return
	}

	now := c.now()
	msg := c.tags.ProcessHotkey(key, now)
	if msg == "" {
		return
	}

	fmt.Fprintf(c.out, "\r\n%s\r\n", msg)

	if binding, ok := metadata.HotkeyMap[key]; ok && !strings.HasPrefix(msg, "✗") {
		c.metrics.RecordTagActivated(string(binding.Tag))
	}
	c.metrics.SetActiveTags(len(c.tags.ActiveTags()))
}

// flush writes the pending buffer. On failure the samples are retained
// and retried on the next trigger, so a transient database stall loses
// nothing.
func (c *Collector) flush() {
	if len(c.pending) == 0 {
		return
	}

	err := c.sink.InsertMetricsBatch(c.pending)
	c.metrics.RecordBatchFlush(len(c.pending), err)
	if err != nil {
		c.logger.Error("batch flush failed, retaining samples",
			slog.Int("samples", len(c.pending)),
			slog.String("error", err.Error()),
		)
		return
	}

	c.logger.Debug("batch flushed", slog.Int("samples", len(c.pending)))
	c.pending = c.pending[:0]
}

// finish performs the shutdown flush.
func (c *Collector) finish() {
	c.flush()
	if len(c.pending) > 0 {
		c.logger.Warn("discarding unflushed samples on shutdown",
			slog.Int("samples", len(c.pending)))
	}
	fmt.Fprint(c.out, "\r\n")
	c.logger.Info("collector stopped")
}

// printStatus redraws the single-line live status.
func (c *Collector) printStatus() {
	now := c.now()

	indicator := "silence"
	if c.lastVerdict.Speech {
		indicator = "SPEECH "
	}

	fps := float64(c.statusFrames) / c.config.StatusInterval.Seconds()
	c.statusFrames = 0

	fmt.Fprintf(c.out, "\r[%s] RMS: %5.2f%% | %4.0f fps | buf %4d | %s\x1b[K",
		indicator, c.lastVerdict.RMSPercent, fps, len(c.pending), c.tags.Display(now))
}

// Pending returns the number of unflushed samples.
func (c *Collector) Pending() int {
	return len(c.pending)
}

const helpText = "\r\n" +
	"Tag hotkeys (30s):    1=1 Speaker Close  2=2 Speakers  0=Music  9=Video  8=Loud Ambient\r\n" +
	"Tag hotkeys (toggle): q=1 Speaker Close  w=2 Speakers  p=Music  o=Video  i=Loud Ambient\r\n" +
	"h=help  Ctrl+C=quit\r\n"
