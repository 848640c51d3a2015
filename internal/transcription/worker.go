package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/convert"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/metrics"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/queue"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/segment"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/transcript"
)

// WorkerConfig configures the transcription worker.
type WorkerConfig struct {
	// TargetRate is the sample rate the engine expects.
	TargetRate int
}

// Worker consumes chunks from the queue until it pops the nil sentinel.
type Worker struct {
	cfg        WorkerConfig
	chunks     *queue.Unbounded[*segment.Chunk]
	converter  convert.Converter
	engine     Engine
	transcript *transcript.Transcript
	recorder   *audio.Recorder
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Statistics
	processed uint64
	dropped   uint64
	empty     uint64
	mu        sync.RWMutex
}

// WorkerStats represents worker statistics
type WorkerStats struct {
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Empty     uint64 `json:"empty"`
	Pending   int    `json:"pending"`
}

// NewWorker creates a transcription worker. recorder may be nil.
func NewWorker(cfg WorkerConfig, chunks *queue.Unbounded[*segment.Chunk], converter convert.Converter,
	engine Engine, tr *transcript.Transcript, recorder *audio.Recorder, logger *slog.Logger, m *metrics.Metrics) (*Worker, error) {
	if chunks == nil || converter == nil || engine == nil || tr == nil {
		return nil, fmt.Errorf("worker requires a queue, converter, engine and transcript")
	}
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = 16000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:        cfg,
		chunks:     chunks,
		converter:  converter,
		engine:     engine,
		transcript: tr,
		recorder:   recorder,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Run processes chunks until the nil sentinel is popped or ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Transcription worker started", slog.Int("target_rate", w.cfg.TargetRate))
	defer w.logger.Info("Transcription worker stopped")

	for {
		chunk, err := w.chunks.Pop(ctx)
		if err != nil {
			return nil
		}
		w.metrics.SetQueueSize(w.chunks.Len())
		if chunk == nil {
			return nil
		}

		if _, err := w.Process(ctx, chunk); err != nil {
			w.mu.Lock()
			w.dropped++
			w.mu.Unlock()
			w.logger.Error("Dropping chunk",
				slog.String("chunk_id", chunk.ID),
				slog.Duration("duration", chunk.Duration),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Process converts, transcribes and appends one chunk, returning the appended text.
func (w *Worker) Process(ctx context.Context, chunk *segment.Chunk) (string, error) {
	convStart := time.Now()
	pcm, err := w.converter.Convert(ctx, chunk.Data, chunk.Format, w.cfg.TargetRate)
	w.metrics.RecordConversion(backendName(w.converter), time.Since(convStart).Seconds(), err)
	if err != nil {
		return "", fmt.Errorf("convert chunk: %w", err)
	}

	if w.recorder != nil {
		path, err := w.recorder.Save(pcm, w.cfg.TargetRate)
		if err != nil {
			w.logger.Warn("Failed to save chunk", slog.String("chunk_id", chunk.ID), slog.String("error", err.Error()))
		} else {
			w.logger.Debug("Chunk saved", slog.String("chunk_id", chunk.ID), slog.String("path", path))
		}
	}

	samples := audio.Normalize(pcm)

	w.metrics.RecordTranscriptionRequest()
	start := time.Now()
	texts, err := w.engine.Transcribe(ctx, samples)
	elapsed := time.Since(start)
	if err != nil {
		w.metrics.RecordTranscriptionFailure(elapsed.Seconds())
		return "", fmt.Errorf("transcribe chunk: %w", err)
	}
	w.metrics.RecordTranscriptionSuccess(elapsed.Seconds())

	text := strings.Join(texts, "")
	w.mu.Lock()
	w.processed++
	if text == "" {
		w.empty++
	}
	w.mu.Unlock()

	w.logger.Debug("Chunk transcribed",
		slog.String("chunk_id", chunk.ID),
		slog.Int("segments", len(texts)),
		slog.Duration("elapsed", elapsed),
		slog.String("text", text),
	)

	w.transcript.Append(text)
	return text, nil
}

// Stats returns current worker statistics
func (w *Worker) Stats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerStats{
		Processed: w.processed,
		Dropped:   w.dropped,
		Empty:     w.empty,
		Pending:   w.chunks.Len(),
	}
}

func backendName(c convert.Converter) string {
	switch v := c.(type) {
	case *convert.FFmpeg:
		return "ffmpeg"
	case *convert.Native:
		return "native"
	case *convert.Pool:
		return backendName(v.Backend())
	default:
		return fmt.Sprintf("%T", c)
	}
}
