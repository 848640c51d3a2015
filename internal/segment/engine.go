package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/capture"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/metrics"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/queue"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/vad"
)

// State represents the current state of the engine
type State int

const (
	StateAccumulating State = iota
	StateFlushing
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Reason tells why a chunk was flushed.
type Reason string

const (
	ReasonSilence Reason = "silence"
	ReasonCeiling Reason = "ceiling"
)

// Chunk is an utterance ready for transcription. Data is owned by the receiver.
type Chunk struct {
	ID        string        `json:"id"`
	Data      []byte        `json:"-"`
	Format    audio.Format  `json:"format"`
	Frames    int           `json:"frames"`
	Duration  time.Duration `json:"duration"`
	Reason    Reason        `json:"reason"`
	CreatedAt time.Time     `json:"created_at"`
}

// Config contains configuration for the segmentation process
type Config struct {
	Format                audio.Format
	FrameMs               int
	TargetRecordMs        int
	RequiredSilenceFrames int
	MaxRecordMs           int
}

// Validate checks the segmentation parameters.
func (c Config) Validate() error {
	if c.Format.SampleRate <= 0 || c.Format.Channels <= 0 {
		return fmt.Errorf("invalid capture format %s", c.Format)
	}
	if c.FrameMs <= 0 {
		return fmt.Errorf("frame duration must be positive, got %d", c.FrameMs)
	}
	if c.TargetRecordMs <= 0 {
		return fmt.Errorf("target record duration must be positive, got %d", c.TargetRecordMs)
	}
	if c.RequiredSilenceFrames < 0 {
		return fmt.Errorf("required silence frames cannot be negative, got %d", c.RequiredSilenceFrames)
	}
	if c.MaxRecordMs < c.TargetRecordMs {
		return fmt.Errorf("max record duration (%d) must be >= target record duration (%d)", c.MaxRecordMs, c.TargetRecordMs)
	}
	return nil
}

// Engine is the segmentation state machine.
type Engine struct {
	cfg        Config
	classifier vad.Classifier
	logger     *slog.Logger
	metrics    *metrics.Metrics

	state   State
	buf     []byte
	frames  int
	silent  int
	chunkID string

	// Statistics
	totalFrames   uint64
	invalidFrames uint64
	speechFrames  uint64
	silenceChunks uint64
	ceilingChunks uint64
	discarded     uint64

	mu sync.RWMutex
}

// Stats represents engine statistics
type Stats struct {
	State           string `json:"state"`
	TotalFrames     uint64 `json:"total_frames"`
	InvalidFrames   uint64 `json:"invalid_frames"`
	SpeechFrames    uint64 `json:"speech_frames"`
	SilenceChunks   uint64 `json:"silence_chunks"`
	CeilingChunks   uint64 `json:"ceiling_chunks"`
	DiscardedChunks uint64 `json:"discarded_chunks"`
	CurrentMs       int    `json:"current_ms"`
	CurrentFrames   int    `json:"current_frames"`
	SilentFrames    int    `json:"consecutive_silent_frames"`
}

// NewEngine creates a new segmentation engine
func NewEngine(cfg Config, classifier vad.Classifier, logger *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		return nil, fmt.Errorf("vad classifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		classifier: classifier,
		logger:     logger,
		metrics:    m,
		state:      StateAccumulating,
	}, nil
}

// Feed processes one raw frame and returns a chunk when the frame completes one.
func (e *Engine) Feed(frame []byte) *Chunk {
	speech, valid := e.classify(frame)
	e.metrics.RecordFrame(valid, speech)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalFrames++
	if !valid {
		e.invalidFrames++
	}
	if speech {
		e.speechFrames++
		e.silent = 0
	} else {
		e.silent++
	}

	// invalid frames are kept so no audio is dropped
	if e.frames == 0 {
		e.chunkID = uuid.NewString()
	}
	e.buf = append(e.buf, frame...)
	e.frames++

	accumulatedMs := e.cfg.Format.DurationMs(len(e.buf))
	switch {
	case accumulatedMs >= e.cfg.MaxRecordMs:
		return e.flush(ReasonCeiling, accumulatedMs)
	case accumulatedMs >= e.cfg.TargetRecordMs && e.silent >= e.cfg.RequiredSilenceFrames:
		return e.flush(ReasonSilence, accumulatedMs)
	}
	return nil
}

// classify validates the frame and runs the VAD. Invalid frames and VAD
// failures count as silence.
func (e *Engine) classify(frame []byte) (speech, valid bool) {
	mono, err := audio.ToMono(frame, e.cfg.Format.Channels)
	if err != nil {
		e.logger.Error("Invalid frame", slog.Int("frame_size", len(frame)), slog.String("error", err.Error()))
		return false, false
	}
	if !audio.ValidFrame(mono, e.cfg.Format.SampleRate, e.cfg.FrameMs) {
		e.logger.Error("Invalid frame",
			slog.Int("frame_size", len(frame)),
			slog.String("format", e.cfg.Format.String()),
			slog.Int("frame_ms", e.cfg.FrameMs),
		)
		return false, false
	}

	speech, err = e.classifier.IsSpeech(mono, e.cfg.Format.SampleRate)
	if err != nil {
		e.logger.Error("VAD classification failed", slog.String("error", err.Error()))
		return false, false
	}
	return speech, true
}

// flush hands the accumulated audio over as a chunk and resets the counters.
// Caller holds e.mu.
func (e *Engine) flush(reason Reason, accumulatedMs int) *Chunk {
	e.state = StateFlushing

	chunk := &Chunk{
		ID:        e.chunkID,
		Data:      e.buf,
		Format:    e.cfg.Format,
		Frames:    e.frames,
		Duration:  time.Duration(accumulatedMs) * time.Millisecond,
		Reason:    reason,
		CreatedAt: time.Now(),
	}

	switch reason {
	case ReasonSilence:
		e.silenceChunks++
	case ReasonCeiling:
		e.ceilingChunks++
	}

	e.buf = nil
	e.frames = 0
	e.silent = 0
	e.chunkID = ""
	e.state = StateAccumulating

	e.metrics.RecordChunk(string(reason), chunk.Duration.Seconds(), len(chunk.Data))
	e.logger.Debug("Chunk flushed",
		slog.String("chunk_id", chunk.ID),
		slog.String("reason", string(reason)),
		slog.Duration("duration", chunk.Duration),
		slog.Int("frames", chunk.Frames),
	)
	return chunk
}

// Discard drops the partially accumulated chunk and returns its duration.
func (e *Engine) Discard() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frames == 0 {
		return 0
	}
	d := time.Duration(e.cfg.Format.DurationMs(len(e.buf))) * time.Millisecond
	e.discarded++
	e.buf = nil
	e.frames = 0
	e.silent = 0
	e.chunkID = ""
	return d
}

// Run is the capture loop: it reads frames from src, feeds them to the engine
// and pushes every chunk onto out. It returns when stop is set, ctx is done or
// the source is exhausted. A partial chunk is discarded on the way out.
func (e *Engine) Run(ctx context.Context, src capture.Source, out *queue.Unbounded[*Chunk], stop *atomic.Bool) error {
	e.logger.Info("Capture loop started",
		slog.String("format", src.Format().String()),
		slog.Int("target_record_ms", e.cfg.TargetRecordMs),
		slog.Int("required_silence_frames", e.cfg.RequiredSilenceFrames),
		slog.Int("max_record_ms", e.cfg.MaxRecordMs),
	)
	defer e.discardPartial()

	for {
		if stop.Load() || ctx.Err() != nil {
			return nil
		}

		frame, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.logger.Info("Capture source exhausted")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read capture frame: %w", err)
		}

		if chunk := e.Feed(frame); chunk != nil {
			out.Push(chunk)
			e.metrics.SetQueueSize(out.Len())
		}
	}
}

func (e *Engine) discardPartial() {
	if d := e.Discard(); d > 0 {
		e.logger.Info("Discarding partial chunk on stop", slog.Duration("duration", d))
	}
	e.logger.Info("Capture loop stopped")
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Stats returns current engine statistics
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		State:           e.state.String(),
		TotalFrames:     e.totalFrames,
		InvalidFrames:   e.invalidFrames,
		SpeechFrames:    e.speechFrames,
		SilenceChunks:   e.silenceChunks,
		CeilingChunks:   e.ceilingChunks,
		DiscardedChunks: e.discarded,
		CurrentMs:       e.cfg.Format.DurationMs(len(e.buf)),
		CurrentFrames:   e.frames,
		SilentFrames:    e.silent,
	}
}
