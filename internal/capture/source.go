package capture

import (
	"context"
	"errors"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

// ErrNoDevice is returned when a capture source cannot be opened.
var ErrNoDevice = errors.New("capture device unavailable")

// Format is the native format of a capture source.
type Format = audio.Format

// Source yields raw frames of a fixed duration. Read returns io.EOF once the
// source is exhausted.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	Format() Format
	Close() error
}
