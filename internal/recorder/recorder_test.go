package recorder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/robin-collins/arecordd/internal/vad"
)

type fakeSource struct {
	r       io.Reader
	stopped bool
}

func (s *fakeSource) Output() io.Reader { return s.r }
func (s *fakeSource) Running() bool     { return !s.stopped }
func (s *fakeSource) Stop(grace time.Duration) error {
	s.stopped = true
	return nil
}

// fakeEncoder buffers written PCM and materializes the output file when
// its input closes, like the real encoder flushing on EOF.
type fakeEncoder struct {
	path    string
	buf     bytes.Buffer
	closed  bool
	stopped bool
}

func (e *fakeEncoder) Write(p []byte) (int, error) { return e.buf.Write(p) }

func (e *fakeEncoder) CloseInput() error {
	e.closed = true
	return os.WriteFile(e.path, e.buf.Bytes(), 0o644)
}

func (e *fakeEncoder) Wait(grace time.Duration) error { return nil }

func (e *fakeEncoder) Stop(grace time.Duration) error {
	e.stopped = true
	return nil
}

type fakeFiles struct {
	duration    time.Duration
	durationErr error
	trimErr     error
	concatCalls int
	trimCalls   int
}

func (f *fakeFiles) TrimTail(src, dst string, tail time.Duration) error {
	f.trimCalls++
	if f.trimErr != nil {
		return f.trimErr
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (f *fakeFiles) Concat(first, second, dst string) error {
	f.concatCalls++
	a, err := os.ReadFile(first)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(second)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append(a, b...), 0o644)
}

func (f *fakeFiles) Duration(path string) (time.Duration, error) {
	return f.duration, f.durationErr
}

// scriptClassifier replays a verdict sequence, then repeats the last
// entry.
type scriptClassifier struct {
	verdicts []bool
	i        int
}

func (c *scriptClassifier) Classify(frame []byte) vad.Verdict {
	v := false
	if len(c.verdicts) > 0 {
		if c.i < len(c.verdicts) {
			v = c.verdicts[c.i]
		} else {
			v = c.verdicts[len(c.verdicts)-1]
		}
	}
	c.i++
	return vad.Verdict{Speech: v, RMSPercent: 1.0}
}

// fakeClock advances a fixed step on every reading.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

type run struct {
	count  int
	speech bool
}

// verdictRun builds a verdict script from runs of identical verdicts.
func verdictRun(runs ...run) []bool {
	var out []bool
	for _, r := range runs {
		for i := 0; i < r.count; i++ {
			out = append(out, r.speech)
		}
	}
	return out
}

func newTestRecorder(t *testing.T, frames int, verdicts []bool, files *fakeFiles) (*Recorder, *fakeSource, *fakeEncoder) {
	t.Helper()

	dir := t.TempDir()
	if err := ValidateStorage(dir); err != nil {
		t.Fatal(err)
	}

	source := &fakeSource{r: bytes.NewReader(make([]byte, frames*4))}
	encoder := &fakeEncoder{}

	r := NewRecorder(Config{
		StorageDir:        dir,
		FilePrefix:        "audio",
		SampleRate:        16000,
		CompressionFormat: "wav",
		FrameBytes:        4,
		FrameDuration:     100 * time.Millisecond,
		MinDuration:       time.Second,
		MaxDuration:       10 * time.Second,
		SilenceDuration:   500 * time.Millisecond,
		OverlapDuration:   time.Minute,
		MinSegmentBytes:   1,
		GracePeriod:       10 * time.Millisecond,
		RetryDelay:        time.Millisecond,
	}, Dependencies{
		StartCapture: func() (FrameSource, error) { return source, nil },
		StartEncoder: func(outputPath string) (EncoderSink, error) {
			encoder.path = outputPath
			return encoder, nil
		},
		Files:      files,
		Classifier: &scriptClassifier{verdicts: verdicts},
	}, nil)

	r.now = (&fakeClock{t: segT0, step: 100 * time.Millisecond}).Now

	return r, source, encoder
}

func TestRecordSegmentStopsOnSilence(t *testing.T) {
	files := &fakeFiles{duration: 2 * time.Second}
	// Leading silence, sustained speech, then enough silence to stop.
	verdicts := verdictRun(run{2, false}, run{15, true}, run{20, false})
	r, source, encoder := newTestRecorder(t, 40, verdicts, files)

	seg := NewSegment(r.config.StorageDir, "audio", 16000, "wav", segT0)
	if err := r.recordSegment(context.Background(), seg); err != nil {
		t.Fatalf("recordSegment failed: %v", err)
	}

	if _, err := os.Stat(seg.FinalPath); err != nil {
		t.Error("finalized segment missing from final storage")
	}
	if _, err := os.Stat(seg.TempPath); !os.IsNotExist(err) {
		t.Error("temp file should be gone after finalization")
	}
	if r.State() != StateIdle {
		t.Errorf("state = %v, want idle", r.State())
	}
	if !source.stopped {
		t.Error("capture process should be stopped")
	}
	if !encoder.closed {
		t.Error("encoder input should be closed")
	}

	// Leading-silence frames are written too: nothing is discarded once
	// encoding starts.
	if encoder.buf.Len() < 17*4 {
		t.Errorf("encoded %d bytes, want at least %d", encoder.buf.Len(), 17*4)
	}

	if files.trimCalls != 1 {
		t.Errorf("overlap trim calls = %d, want 1", files.trimCalls)
	}
	if r.overlapPath == "" {
		t.Error("overlap buffer should be prepared for the next segment")
	}
	if _, err := os.Stat(r.overlapPath); err != nil {
		t.Error("overlap buffer file missing")
	}
}

func TestRecordSegmentShortDiscarded(t *testing.T) {
	files := &fakeFiles{duration: 300 * time.Millisecond}
	// Brief speech then the stream ends.
	r, _, _ := newTestRecorder(t, 5, verdictRun(run{5, true}), files)

	seg := NewSegment(r.config.StorageDir, "audio", 16000, "wav", segT0)
	err := r.recordSegment(context.Background(), seg)
	if !errors.Is(err, errSegmentDiscarded) {
		t.Fatalf("err = %v, want segment discarded", err)
	}

	if _, err := os.Stat(seg.TempPath); !os.IsNotExist(err) {
		t.Error("discarded temp file should be deleted")
	}
	if _, err := os.Stat(seg.FinalPath); !os.IsNotExist(err) {
		t.Error("discarded segment must not reach final storage")
	}
}

func TestRecordSegmentSilenceBeforeMinDurationDoesNotStop(t *testing.T) {
	files := &fakeFiles{duration: 2 * time.Second}
	// Speech for 300ms, silence for 600ms (a full silence run but before
	// MinDuration), then speech again, then the stopping silence.
	verdicts := verdictRun(run{3, true}, run{6, false}, run{10, true}, run{20, false})
	r, _, encoder := newTestRecorder(t, 60, verdicts, files)

	seg := NewSegment(r.config.StorageDir, "audio", 16000, "wav", segT0)
	if err := r.recordSegment(context.Background(), seg); err != nil {
		t.Fatalf("recordSegment failed: %v", err)
	}

	// The early silence run must not have ended the segment: frames from
	// the second speech burst are present.
	if encoder.buf.Len() < 20*4 {
		t.Errorf("encoded %d bytes, early silence run ended the segment prematurely", encoder.buf.Len())
	}
}

func TestRecordSegmentMaxDurationCap(t *testing.T) {
	files := &fakeFiles{duration: 2 * time.Second}
	r, _, encoder := newTestRecorder(t, 100, verdictRun(run{100, true}), files)
	r.config.MaxDuration = time.Second
	r.config.MinDuration = 500 * time.Millisecond

	seg := NewSegment(r.config.StorageDir, "audio", 16000, "wav", segT0)
	if err := r.recordSegment(context.Background(), seg); err != nil {
		t.Fatalf("recordSegment failed: %v", err)
	}

	if _, err := os.Stat(seg.FinalPath); err != nil {
		t.Error("capped segment should be finalized")
	}

	// The cap fires about 10 frames after sound start; well before the
	// 100-frame stream ends.
	if encoder.buf.Len() > 20*4 {
		t.Errorf("encoded %d bytes, cap did not stop the segment", encoder.buf.Len())
	}
}

func TestRecordSegmentOverlapMerge(t *testing.T) {
	files := &fakeFiles{duration: 2 * time.Second}
	verdicts := verdictRun(run{15, true}, run{20, false})
	r, _, _ := newTestRecorder(t, 40, verdicts, files)

	// A pending overlap buffer from a previous segment.
	overlap := OverlapPath(r.config.StorageDir, "wav")
	if err := os.WriteFile(overlap, []byte("prior"), 0o644); err != nil {
		t.Fatal(err)
	}
	r.overlapPath = overlap

	seg := NewSegment(r.config.StorageDir, "audio", 16000, "wav", segT0)
	if err := r.recordSegment(context.Background(), seg); err != nil {
		t.Fatalf("recordSegment failed: %v", err)
	}

	if files.concatCalls != 1 {
		t.Errorf("concat calls = %d, want 1", files.concatCalls)
	}

	// The merged segment starts with the overlap bytes.
	data, err := os.ReadFile(seg.FinalPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("prior")) {
		t.Error("finalized segment should start with the merged overlap audio")
	}

	// A fresh overlap was derived afterwards; the consumed one is gone
	// from the recorder's view (same well-known path, new content).
	if files.trimCalls != 1 {
		t.Errorf("trim calls = %d, want 1", files.trimCalls)
	}
}

func TestRecordSegmentDurationProbeFailureKeepsSegment(t *testing.T) {
	files := &fakeFiles{durationErr: errors.New("probe failed")}
	// Long speech so the wall-clock fallback clears MinDuration.
	r, _, _ := newTestRecorder(t, 30, verdictRun(run{30, true}), files)

	seg := NewSegment(r.config.StorageDir, "audio", 16000, "wav", segT0)
	if err := r.recordSegment(context.Background(), seg); err != nil {
		t.Fatalf("probe failure should not discard a long segment: %v", err)
	}

	if _, err := os.Stat(seg.FinalPath); err != nil {
		t.Error("segment should be finalized despite the probe failure")
	}
}

func TestRecordSegmentAbort(t *testing.T) {
	files := &fakeFiles{duration: 2 * time.Second}

	pr, pw := io.Pipe()
	defer pw.Close()

	source := &fakeSource{r: pr}
	encoder := &fakeEncoder{}

	dir := t.TempDir()
	if err := ValidateStorage(dir); err != nil {
		t.Fatal(err)
	}

	r := NewRecorder(Config{
		StorageDir:        dir,
		FilePrefix:        "audio",
		SampleRate:        16000,
		CompressionFormat: "wav",
		FrameBytes:        4,
		MinDuration:       time.Second,
		MaxDuration:       10 * time.Second,
		SilenceDuration:   500 * time.Millisecond,
		MinSegmentBytes:   1,
		GracePeriod:       10 * time.Millisecond,
	}, Dependencies{
		StartCapture: func() (FrameSource, error) { return source, nil },
		StartEncoder: func(outputPath string) (EncoderSink, error) {
			encoder.path = outputPath
			return encoder, nil
		},
		Files:      files,
		Classifier: &scriptClassifier{},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seg := NewSegment(dir, "audio", 16000, "wav", segT0)
	err := r.recordSegment(ctx, seg)
	if !errors.Is(err, errAborted) {
		t.Fatalf("err = %v, want aborted", err)
	}

	if !source.stopped {
		t.Error("abort should stop the capture process")
	}
	if !encoder.stopped {
		t.Error("abort should stop the encoder process")
	}
	if _, err := os.Stat(seg.TempPath); !os.IsNotExist(err) {
		t.Error("abort should delete the partial temp file")
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	files := &fakeFiles{duration: 2 * time.Second}
	r, _, _ := newTestRecorder(t, 0, nil, files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
