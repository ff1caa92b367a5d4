package audio

import (
	"errors"
	"io"
)

// Frame is one fixed-size chunk of raw S16_LE PCM read from the capture
// source. Ownership passes to the receiver for one loop iteration.
type Frame struct {
	Data []byte
}

// FrameReader reads fixed-size PCM frames from a byte stream and delivers
// them over a bounded channel. Modeling the blocking capture read as a
// channel producer lets the control loop interleave keyboard polling,
// batch flushing and tag expiry without read-timeout tricks.
type FrameReader struct {
	src       io.Reader
	frameSize int
	frames    chan Frame
	done      chan struct{}
	err       error
}

// NewFrameReader creates a frame reader for the given source. frameSize is
// the exact byte length of one frame; depth bounds the channel to limit
// memory under backpressure.
func NewFrameReader(src io.Reader, frameSize, depth int) *FrameReader {
	if depth < 1 {
		depth = 1
	}

	return &FrameReader{
		src:       src,
		frameSize: frameSize,
		frames:    make(chan Frame, depth),
		done:      make(chan struct{}),
	}
}

// Start launches the producer goroutine. The frames channel is closed on
// end-of-stream, read error, or Stop.
func (r *FrameReader) Start() {
	go func() {
		defer close(r.frames)

		for {
			buf := make([]byte, r.frameSize)
			if _, err := io.ReadFull(r.src, buf); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					r.err = err
				}
				return
			}

			select {
			case r.frames <- Frame{Data: buf}:
			case <-r.done:
				return
			}
		}
	}()
}

// Frames returns the channel of captured frames. The channel closes when
// the source ends or the reader is stopped.
func (r *FrameReader) Frames() <-chan Frame {
	return r.frames
}

// Stop tells the producer to abandon the source. Safe to call once.
func (r *FrameReader) Stop() {
	close(r.done)
}

// Err returns the read error that ended the stream, if any. End-of-stream
// is not an error: a capture process exiting reports a nil Err.
func (r *FrameReader) Err() error {
	return r.err
}
