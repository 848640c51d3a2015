package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

// Reader slices an io.Reader carrying raw s16le PCM into frames. Frames are
// read one ahead by a background goroutine so Read can return as soon as ctx
// is done, even while the underlying reader is idle.
type Reader struct {
	r          io.Reader
	format     Format
	frameBytes int

	startOnce sync.Once
	stopOnce  sync.Once
	frames    chan readResult
	done      chan struct{}
	err       error
}

type readResult struct {
	frame []byte
	err   error
}

// NewReader returns a source reading frames of frameMs from r.
func NewReader(r io.Reader, format Format, frameMs int) (*Reader, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrNoDevice)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid capture format %s", format)
	}
	frameBytes := audio.FrameBytes(format.SampleRate, format.Channels, frameMs)
	if frameBytes <= 0 {
		return nil, fmt.Errorf("frame duration %dms yields an empty frame at %s", frameMs, format)
	}
	return &Reader{
		r:          r,
		format:     format,
		frameBytes: frameBytes,
		frames:     make(chan readResult, 1),
		done:       make(chan struct{}),
	}, nil
}

// Read returns the next full frame. A trailing partial frame is dropped and
// reported as io.EOF. Once the reader fails every later call returns the same
// error. Read is not safe for concurrent use.
func (s *Reader) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	s.startOnce.Do(func() { go s.readLoop() })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, io.EOF
	case res := <-s.frames:
		if res.err != nil {
			s.err = res.err
		}
		return res.frame, res.err
	}
}

func (s *Reader) readLoop() {
	for {
		frame := make([]byte, s.frameBytes)
		_, err := io.ReadFull(s.r, frame)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		res := readResult{frame: frame, err: err}
		if err != nil {
			res.frame = nil
		}

		select {
		case s.frames <- res:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// stop releases the read-ahead goroutine.
func (s *Reader) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Format implements Source.
func (s *Reader) Format() Format {
	return s.format
}

// FrameBytes returns the size of each frame.
func (s *Reader) FrameBytes() int {
	return s.frameBytes
}

// Close closes the underlying reader if it is an io.Closer.
func (s *Reader) Close() error {
	s.stop()
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
