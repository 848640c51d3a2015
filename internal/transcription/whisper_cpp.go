//go:build whisper_cpp

package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperCPP runs a local whisper.cpp model.
type WhisperCPP struct {
	model    whisperpkg.Model
	threads  uint
	language string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewWhisperCPP loads the model at modelPath. threads <= 0 uses all CPUs.
func NewWhisperCPP(modelPath, language string, threads int, logger *slog.Logger) (*WhisperCPP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if language == "" {
		language = "auto"
	}

	m, err := whisperpkg.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", modelPath, err)
	}

	logger.Info("Whisper model loaded",
		slog.String("model", modelPath),
		slog.Int("threads", threads),
		slog.String("language", language),
	)
	return &WhisperCPP{model: m, threads: uint(threads), language: language, logger: logger}, nil
}

// Transcribe implements Engine. Calls are serialised on the model.
func (w *WhisperCPP) Transcribe(ctx context.Context, samples []float32) ([]string, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create whisper context: %w", err)
	}
	wctx.SetThreads(w.threads)
	if err := wctx.SetLanguage(w.language); err != nil {
		w.logger.Warn("Unsupported whisper language", slog.String("language", w.language), slog.String("error", err.Error()))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("process audio: %w", err)
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read segment: %w", err)
		}
		segments = append(segments, seg.Text)
	}
	return segments, nil
}

// Close releases the model.
func (w *WhisperCPP) Close() error {
	if w.model != nil {
		return w.model.Close()
	}
	return nil
}
