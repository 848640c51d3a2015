package annotate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/metrics"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/sentence"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/transcript"
)

var (
	// ErrAnnotationInFlight is returned when a request arrives while another
	// annotation is still running.
	ErrAnnotationInFlight = errors.New("annotation already in flight")

	// ErrEmptyText is returned when there is nothing to annotate.
	ErrEmptyText = errors.New("nothing selected to annotate")
)

// Answers are framed with these markers in the transcript.
const (
	openMarker  = "\n*"
	closeMarker = "*\n"
)

// Mode selects how answers reach the transcript.
type Mode string

const (
	ModeBlocking  Mode = "blocking"
	ModeStreaming Mode = "streaming"
)

// DefaultMaxConsecutiveStreamErrors abandons a stream after this many failed increments in a row.
const DefaultMaxConsecutiveStreamErrors = 3

// Config configures the dispatcher.
type Config struct {
	Mode        Mode
	MaxTokens   int
	Temperature float32

	MaxConsecutiveStreamErrors int
}

// Annotation describes an accepted request. Done is closed when the answer
// has been fully written or abandoned.
type Annotation struct {
	ID      string        `json:"id"`
	Ordinal int           `json:"ordinal"`
	Prompt  string        `json:"prompt"`
	Tag     string        `json:"tag"`
	Span    sentence.Span `json:"span"`
	Mode    Mode          `json:"mode"`
	Done    chan struct{} `json:"-"`

	err error
}

// Wait blocks until the annotation is done and returns its failure, if any.
func (a *Annotation) Wait() error {
	<-a.Done
	return a.err
}

// Dispatcher runs at most one annotation at a time.
type Dispatcher struct {
	cfg        Config
	prompts    *PromptBook
	completer  Completer
	transcript *transcript.Transcript
	logger     *slog.Logger
	metrics    *metrics.Metrics

	slot *semaphore.Weighted
	wg   sync.WaitGroup

	// streams is the parent of every stream context; Shutdown cancels it.
	streams       context.Context
	cancelStreams context.CancelFunc

	// tag picks the highlight colour; replaced in tests.
	tag func() string
}

// NewDispatcher creates a dispatcher writing answers into tr.
func NewDispatcher(cfg Config, prompts *PromptBook, completer Completer, tr *transcript.Transcript,
	logger *slog.Logger, m *metrics.Metrics) (*Dispatcher, error) {
	if completer == nil || tr == nil {
		return nil, fmt.Errorf("dispatcher requires a completer and a transcript")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeBlocking
	case ModeBlocking, ModeStreaming:
	default:
		return nil, fmt.Errorf("unknown annotation mode %q", cfg.Mode)
	}
	if cfg.MaxConsecutiveStreamErrors <= 0 {
		cfg.MaxConsecutiveStreamErrors = DefaultMaxConsecutiveStreamErrors
	}
	if logger == nil {
		logger = slog.Default()
	}
	streams, cancelStreams := context.WithCancel(context.Background())
	return &Dispatcher{
		streams:       streams,
		cancelStreams: cancelStreams,
		cfg:        cfg,
		prompts:    prompts,
		completer:  completer,
		transcript: tr,
		logger:     logger,
		metrics:    m,
		slot:       semaphore.NewWeighted(1),
		tag:        RandomTag,
	}, nil
}

// Mode returns the configured mode.
func (d *Dispatcher) Mode() Mode {
	return d.cfg.Mode
}

// Busy reports whether an annotation is in flight.
func (d *Dispatcher) Busy() bool {
	if !d.slot.TryAcquire(1) {
		return true
	}
	d.slot.Release(1)
	return false
}

// Annotate sends text with the template for ordinal. In blocking mode it
// returns after the answer is appended and completion errors are returned. In
// streaming mode it returns once the stream is open and the answer is written
// in the background; only errors opening the stream are returned.
func (d *Dispatcher) Annotate(ctx context.Context, ordinal int, text string, span sentence.Span) (*Annotation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if !d.slot.TryAcquire(1) {
		d.metrics.RecordAnnotationRejected()
		d.logger.Warn("Annotation rejected, another one is in flight", slog.Int("ordinal", ordinal))
		return nil, ErrAnnotationInFlight
	}

	a := &Annotation{
		ID:      uuid.NewString(),
		Ordinal: ordinal,
		Prompt:  d.prompts.Lookup(ordinal),
		Tag:     d.tag(),
		Span:    span,
		Mode:    d.cfg.Mode,
		Done:    make(chan struct{}),
	}
	req := Request{
		Prompt:       text,
		SystemPrompt: a.Prompt,
		MaxTokens:    d.cfg.MaxTokens,
		Temperature:  d.cfg.Temperature,
	}

	d.logger.Debug("Annotating selection",
		slog.String("annotation_id", a.ID),
		slog.String("prompt", a.Prompt),
		slog.String("text", text),
	)

	if d.cfg.Mode == ModeStreaming {
		return d.startStream(ctx, a, req)
	}

	defer close(a.Done)
	defer d.slot.Release(1)

	start := time.Now()
	answer, err := d.completer.Complete(ctx, req)
	if err != nil {
		a.err = err
		d.metrics.RecordAnnotation(string(ModeBlocking), "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("annotate: %w", err)
	}
	if _, err := d.transcript.AppendAnnotation(openMarker+answer+closeMarker, a.Tag); err != nil {
		a.err = err
		d.metrics.RecordAnnotation(string(ModeBlocking), "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("append annotation: %w", err)
	}
	d.metrics.RecordAnnotation(string(ModeBlocking), "ok", time.Since(start).Seconds())
	d.logger.Info("Annotation appended",
		slog.String("annotation_id", a.ID),
		slog.Int("ordinal", ordinal),
		slog.Int("answer_bytes", len(answer)),
	)
	return a, nil
}

func (d *Dispatcher) startStream(ctx context.Context, a *Annotation, req Request) (*Annotation, error) {
	start := time.Now()
	// The answer outlives the request that asked for it but not the dispatcher.
	streamCtx, cancel := context.WithCancel(d.streams)

	stream, err := d.completer.Stream(streamCtx, req)
	if err != nil {
		cancel()
		d.metrics.RecordAnnotation(string(ModeStreaming), "error", time.Since(start).Seconds())
		d.slot.Release(1)
		a.err = err
		close(a.Done)
		return nil, fmt.Errorf("annotate: %w", err)
	}

	region, err := d.transcript.OpenRegion(transcript.KindAnnotation, a.Tag)
	if err != nil {
		cancel()
		stream.Close()
		d.metrics.RecordAnnotation(string(ModeStreaming), "error", time.Since(start).Seconds())
		d.slot.Release(1)
		a.err = err
		close(a.Done)
		return nil, fmt.Errorf("open annotation region: %w", err)
	}

	// Closing the stream unblocks a Recv that does not watch the context.
	var closeOnce sync.Once
	closeStream := func() { closeOnce.Do(func() { stream.Close() }) }
	unwatch := context.AfterFunc(streamCtx, closeStream)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// the slot is free by the time Done is observed
		defer close(a.Done)
		defer d.slot.Release(1)
		defer cancel()

		a.err = d.pump(streamCtx, a, stream, region)
		unwatch()
		closeStream()
		if cerr := region.Close(); cerr != nil && a.err == nil {
			a.err = cerr
		}

		result := "ok"
		if a.err != nil {
			result = "abandoned"
		}
		d.metrics.RecordAnnotation(string(ModeStreaming), result, time.Since(start).Seconds())
		d.logger.Info("Annotation stream finished",
			slog.String("annotation_id", a.ID),
			slog.String("result", result),
			slog.Duration("elapsed", time.Since(start)),
		)
	}()
	return a, nil
}

// pump copies increments into the region between the answer markers.
// Failed increments are skipped until too many fail in a row.
func (d *Dispatcher) pump(ctx context.Context, a *Annotation, stream Stream, region *transcript.Region) error {
	if err := region.Write(openMarker); err != nil {
		return err
	}

	failures := 0
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && ctx.Err() != nil {
			region.Write(closeMarker)
			return fmt.Errorf("stream cancelled: %w", ctx.Err())
		}
		d.metrics.RecordStreamIncrement(err)
		if err != nil {
			failures++
			d.logger.Warn("Skipping failed stream increment",
				slog.String("annotation_id", a.ID),
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()),
			)
			if failures >= d.cfg.MaxConsecutiveStreamErrors {
				// Close the answer so the transcript stays well formed.
				region.Write(closeMarker)
				return fmt.Errorf("stream abandoned after %d consecutive errors: %w", failures, err)
			}
			continue
		}
		failures = 0
		if err := region.Write(chunk); err != nil {
			return err
		}
	}

	return region.Write(closeMarker)
}

// Wait blocks until in-flight streams have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// streamCancelWait bounds how long Shutdown waits for a cancelled stream to
// close its region.
const streamCancelWait = 2 * time.Second

// Shutdown waits for in-flight streams until ctx is done, then cancels them.
// It returns an error if a stream is still running after cancellation.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	d.logger.Warn("Cancelling annotation stream still running at shutdown")
	d.cancelStreams()

	select {
	case <-done:
		return nil
	case <-time.After(streamCancelWait):
		return fmt.Errorf("annotation stream did not stop after cancellation: %w", ctx.Err())
	}
}
