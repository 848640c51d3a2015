package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

var (
	// ErrBackendFailed is returned when the conversion backend exits with an error.
	ErrBackendFailed = errors.New("conversion backend failed")

	// ErrEmptyOutput is returned when the backend produced no audio.
	ErrEmptyOutput = errors.New("conversion produced no output")

	// ErrPoolClosed is returned by a Pool after Close.
	ErrPoolClosed = errors.New("conversion pool closed")
)

// Converter converts interleaved PCM-16 in format src to mono PCM-16 at targetRate.
// Implementations must not modify pcm.
type Converter interface {
	Convert(ctx context.Context, pcm []byte, src audio.Format, targetRate int) ([]byte, error)
}

// BackendError carries the diagnostics of a failed conversion.
type BackendError struct {
	Backend  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v (exit code %d): %s", e.Backend, e.Err, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.Backend, e.Err, e.ExitCode)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func validateRequest(pcm []byte, src audio.Format, targetRate int) error {
	if src.SampleRate <= 0 {
		return fmt.Errorf("source sample rate must be positive, got %d", src.SampleRate)
	}
	if src.Channels != 1 && src.Channels != 2 {
		return fmt.Errorf("%w: %d", audio.ErrUnsupportedChannels, src.Channels)
	}
	if targetRate <= 0 {
		return fmt.Errorf("target sample rate must be positive, got %d", targetRate)
	}
	if len(pcm)%(src.Channels*audio.BytesPerSample) != 0 {
		return fmt.Errorf("pcm length %d is not a whole number of %s frames", len(pcm), src)
	}
	return nil
}
