package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/annotate"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/capture"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/convert"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/metrics"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/queue"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/segment"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/sentence"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/transcript"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/transcription"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/vad"
)

// Options holds the collaborators a session is built from. Recorder, Prompts,
// Logger and Metrics may be nil.
type Options struct {
	Source     capture.Source
	Classifier vad.Classifier
	Segment    segment.Config
	Converter  convert.Converter
	Engine     transcription.Engine
	TargetRate int
	Recorder   *audio.Recorder
	Completer  annotate.Completer
	Prompts    *annotate.PromptBook
	Annotate   annotate.Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// AnnotationGrace is how long teardown waits for a streaming answer
	// before cancelling it. Zero means DefaultAnnotationGrace.
	AnnotationGrace time.Duration
}

// DefaultAnnotationGrace is the teardown wait for an in-flight answer.
const DefaultAnnotationGrace = 30 * time.Second

// UpdateType tells display clients what changed.
type UpdateType string

const (
	UpdateTranscript UpdateType = "transcript"
	UpdateSelection  UpdateType = "selection"
)

// Update is pushed to listeners after the index has caught up with a change.
type Update struct {
	Type      UpdateType        `json:"type"`
	Event     *transcript.Event `json:"event,omitempty"`
	Sentences int               `json:"sentences"`
	Selection sentence.Span     `json:"selection"`
}

// Listener receives updates from the display pump. Publish must not block.
type Listener interface {
	Publish(Update)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Update)

// Publish implements Listener.
func (f ListenerFunc) Publish(u Update) { f(u) }

// Session owns the chunk queue, the display queue, the transcript, the
// sentence index and the annotation dispatcher.
type Session struct {
	source     capture.Source
	segmenter  *segment.Engine
	chunks     *queue.Unbounded[*segment.Chunk]
	events     *queue.Unbounded[transcript.Event]
	transcript *transcript.Transcript
	index      *sentence.Index
	worker     *transcription.Worker
	dispatcher *annotate.Dispatcher
	prompts    *annotate.PromptBook
	logger     *slog.Logger
	metrics    *metrics.Metrics

	stop    atomic.Bool
	running atomic.Bool
	started time.Time
	grace   time.Duration

	captureMu     sync.Mutex
	cancelCapture context.CancelFunc

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// New builds a session. The segmentation format is taken from the source.
func New(opts Options) (*Session, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("session requires a capture source: %w", capture.ErrNoDevice)
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("session requires a VAD classifier")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	segCfg := opts.Segment
	segCfg.Format = opts.Source.Format()
	segmenter, err := segment.NewEngine(segCfg, opts.Classifier, logger.With(slog.String("component", "segment")), opts.Metrics)
	if err != nil {
		return nil, fmt.Errorf("create segmentation engine: %w", err)
	}

	s := &Session{
		source:    opts.Source,
		segmenter: segmenter,
		chunks:    queue.New[*segment.Chunk](),
		events:    queue.New[transcript.Event](),
		index:     sentence.NewIndex(),
		prompts:   opts.Prompts,
		logger:    logger,
		metrics:   opts.Metrics,
		listeners: make(map[int]Listener),
		started:   time.Now(),
		grace:     opts.AnnotationGrace,
	}
	if s.grace <= 0 {
		s.grace = DefaultAnnotationGrace
	}
	s.transcript = transcript.New(s.events, logger.With(slog.String("component", "transcript")), opts.Metrics)

	s.worker, err = transcription.NewWorker(transcription.WorkerConfig{TargetRate: opts.TargetRate},
		s.chunks, opts.Converter, opts.Engine, s.transcript, opts.Recorder,
		logger.With(slog.String("component", "transcription")), opts.Metrics)
	if err != nil {
		return nil, fmt.Errorf("create transcription worker: %w", err)
	}

	s.dispatcher, err = annotate.NewDispatcher(opts.Annotate, opts.Prompts, opts.Completer, s.transcript,
		logger.With(slog.String("component", "annotate")), opts.Metrics)
	if err != nil {
		return nil, fmt.Errorf("create annotation dispatcher: %w", err)
	}
	return s, nil
}

// Run starts the capture loop, the transcription loop and the display pump
// and blocks until the capture loop ends and queued chunks are transcribed.
// Stop ends the session gracefully; cancelling ctx also interrupts in-flight
// conversion, transcription and annotation.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session already running")
	}
	s.logger.Info("Session started", slog.String("format", s.source.Format().String()))

	pumpCtx, stopPump := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPump()
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.pump(pumpCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	// Stop cancels captureCtx so a source blocked in Read returns; the worker
	// keeps ctx and drains the queue.
	captureCtx, cancelCapture := context.WithCancel(gctx)
	defer cancelCapture()
	s.captureMu.Lock()
	s.cancelCapture = cancelCapture
	s.captureMu.Unlock()
	if s.stop.Load() {
		cancelCapture()
	}

	g.Go(func() error {
		defer s.chunks.Push(nil)
		defer s.stop.Store(true)
		return s.segmenter.Run(captureCtx, s.source, s.chunks, &s.stop)
	})
	g.Go(func() error {
		return s.worker.Run(ctx)
	})
	err := g.Wait()

	if cerr := s.source.Close(); cerr != nil {
		s.logger.Warn("Failed to close capture source", slog.String("error", cerr.Error()))
	}
	graceCtx, cancelGrace := context.WithTimeout(ctx, s.grace)
	if serr := s.dispatcher.Shutdown(graceCtx); serr != nil {
		s.logger.Warn("Annotation did not finish", slog.String("error", serr.Error()))
	}
	cancelGrace()

	stopPump()
	<-pumpDone

	s.logConversation()
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

// Stop ends the capture loop, waking it if the source is idle. Chunks already
// queued are still transcribed.
func (s *Session) Stop() {
	if s.stop.CompareAndSwap(false, true) {
		s.logger.Info("Session stopping")
	}
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.cancelCapture != nil {
		s.cancelCapture()
	}
}

// pump forwards transcript events to listeners after reindexing, until ctx is
// done and the queue is drained.
func (s *Session) pump(ctx context.Context) {
	for {
		ev, err := s.events.Pop(ctx)
		if err != nil {
			for {
				ev, ok := s.events.TryPop()
				if !ok {
					return
				}
				s.display(ev)
			}
		}
		s.display(ev)
	}
}

func (s *Session) display(ev transcript.Event) {
	s.index.Reindex(s.transcript.Text())
	s.publish(Update{
		Type:      UpdateTranscript,
		Event:     &ev,
		Sentences: len(s.index.Spans()),
		Selection: s.index.Selection(),
	})
}

func (s *Session) publish(u Update) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.listeners {
		l.Publish(u)
	}
}

// Subscribe registers l for updates and returns a function removing it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Select applies a navigation command to the selection and notifies listeners.
func (s *Session) Select(cmd sentence.Command) (sentence.Span, error) {
	sel, err := s.index.Apply(cmd)
	if err != nil {
		return sel, err
	}
	s.publish(Update{Type: UpdateSelection, Sentences: len(s.index.Spans()), Selection: sel})
	return sel, nil
}

// Annotate sends text to the completion model with the template for ordinal.
// Empty text means the current selection.
func (s *Session) Annotate(ctx context.Context, ordinal int, text string) (*annotate.Annotation, error) {
	var span sentence.Span
	if text == "" {
		span = s.index.Selection()
		if span.Empty() {
			return nil, annotate.ErrEmptyText
		}
		var err error
		if text, err = s.transcript.Slice(span.Start, span.End); err != nil {
			return nil, err
		}
	}
	return s.dispatcher.Annotate(ctx, ordinal, text, span)
}

// Transcript returns the shared transcript.
func (s *Session) Transcript() *transcript.Transcript {
	return s.transcript
}

// Index returns the sentence index.
func (s *Session) Index() *sentence.Index {
	return s.index
}

// Prompts returns the prompt book.
func (s *Session) Prompts() *annotate.PromptBook {
	return s.prompts
}

// Stats is a snapshot of the pipeline.
type Stats struct {
	Running          bool                      `json:"running"`
	Uptime           string                    `json:"uptime"`
	Segmentation     segment.Stats             `json:"segmentation"`
	Transcription    transcription.WorkerStats `json:"transcription"`
	TranscriptBytes  int                       `json:"transcript_bytes"`
	Segments         int                       `json:"segments"`
	Sentences        int                       `json:"sentences"`
	Selection        sentence.Span             `json:"selection"`
	AnnotationMode   annotate.Mode             `json:"annotation_mode"`
	AnnotationBusy   bool                      `json:"annotation_busy"`
	PendingDisplay   int                       `json:"pending_display_events"`
	DisplayListeners int                       `json:"display_listeners"`
}

// Stats returns a snapshot of the pipeline.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	listeners := len(s.listeners)
	s.mu.RUnlock()

	return Stats{
		Running:          s.running.Load() && !s.stop.Load(),
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		Segmentation:     s.segmenter.Stats(),
		Transcription:    s.worker.Stats(),
		TranscriptBytes:  s.transcript.Len(),
		Segments:         len(s.transcript.Segments()),
		Sentences:        len(s.index.Spans()),
		Selection:        s.index.Selection(),
		AnnotationMode:   s.dispatcher.Mode(),
		AnnotationBusy:   s.dispatcher.Busy(),
		PendingDisplay:   s.events.Len(),
		DisplayListeners: listeners,
	}
}

func (s *Session) logConversation() {
	s.logger.Info("Conversation",
		slog.Int("segments", len(s.transcript.Segments())),
		slog.String("text", s.transcript.Text()),
	)
}
