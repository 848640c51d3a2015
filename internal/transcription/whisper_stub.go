//go:build !whisper_cpp

package transcription

import (
	"context"
	"fmt"
	"log/slog"
)

// WhisperCPP is unavailable without the whisper_cpp build tag.
type WhisperCPP struct{}

// NewWhisperCPP fails unless built with -tags whisper_cpp.
func NewWhisperCPP(modelPath, language string, threads int, logger *slog.Logger) (*WhisperCPP, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags whisper_cpp to load %s", ErrEngineUnavailable, modelPath)
}

// Transcribe implements Engine.
func (w *WhisperCPP) Transcribe(ctx context.Context, samples []float32) ([]string, error) {
	return nil, ErrEngineUnavailable
}

// Close implements io.Closer.
func (w *WhisperCPP) Close() error { return nil }
