package transcription

import (
	"context"
	"errors"
)

// ErrEngineUnavailable is returned by engines that were not compiled in.
var ErrEngineUnavailable = errors.New("transcription engine unavailable")

// Engine transcribes mono float32 samples at the engine's sample rate into an
// ordered list of text segments. An empty list means nothing was recognised.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32) ([]string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, samples []float32) ([]string, error)

// Transcribe implements Engine.
func (f EngineFunc) Transcribe(ctx context.Context, samples []float32) ([]string, error) {
	return f(ctx, samples)
}
