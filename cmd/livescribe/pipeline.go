package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/annotate"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/capture"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/config"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/convert"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/metrics"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/segment"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/session"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/transcription"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/vad"
)

// pipeline holds the session and everything that must be released with it.
type pipeline struct {
	session *session.Session
	closers []func() error
}

func (p *pipeline) close(logger *slog.Logger) {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			logger.Warn("Cleanup failed", slog.String("error", err.Error()))
		}
	}
}

func buildPipeline(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*pipeline, error) {
	p := &pipeline{}

	converter, err := newConverter(cfg.Conversion, logger)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, converter.Close)

	engine, closeEngine, err := newEngine(cfg.Transcription, cfg.Conversion.TargetSampleRate, logger, m)
	if err != nil {
		p.close(logger)
		return nil, err
	}
	p.closers = append(p.closers, closeEngine)

	completer, err := annotate.NewOpenAICompleter(annotate.OpenAIConfig{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
	})
	if err != nil {
		p.close(logger)
		return nil, err
	}

	var recorder *audio.Recorder
	if cfg.Recording.SaveWAV {
		if recorder, err = audio.NewRecorder(cfg.Recording.WAVDir); err != nil {
			p.close(logger)
			return nil, err
		}
	}

	classifier, err := vad.NewProcessor(cfg.Recording.VADMode)
	if err != nil {
		p.close(logger)
		return nil, err
	}

	// Capture is opened last: failing here is fatal and nothing has started yet.
	source, err := newSource(cfg.Capture, logger, m)
	if err != nil {
		p.close(logger)
		return nil, fmt.Errorf("open capture source: %w", err)
	}

	mode := annotate.ModeBlocking
	if cfg.Completion.Streaming {
		mode = annotate.ModeStreaming
	}

	sess, err := session.New(session.Options{
		Source:     source,
		Classifier: classifier,
		Segment: segment.Config{
			FrameMs:               cfg.Capture.FrameMs,
			TargetRecordMs:        int(cfg.Recording.GetRecordDuration().Milliseconds()),
			RequiredSilenceFrames: cfg.Recording.RequiredSilenceFrames,
			MaxRecordMs:           int(cfg.Recording.GetMaxRecordDuration().Milliseconds()),
		},
		Converter:  converter,
		Engine:     engine,
		TargetRate: cfg.Conversion.TargetSampleRate,
		Recorder:   recorder,
		Completer:  completer,
		Prompts:    annotate.PromptBookFromMap(cfg.Completion.Prompts),
		Annotate: annotate.Config{
			Mode:                       mode,
			MaxTokens:                  cfg.Completion.MaxTokens,
			Temperature:                cfg.Completion.Temperature,
			MaxConsecutiveStreamErrors: cfg.Completion.MaxConsecutiveStreamErrors,
		},
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		source.Close()
		p.close(logger)
		return nil, err
	}

	p.session = sess
	return p, nil
}

func newConverter(cfg config.ConversionConfig, logger *slog.Logger) (*convert.Pool, error) {
	var backend convert.Converter
	switch cfg.Backend {
	case "ffmpeg":
		backend = convert.NewFFmpeg(cfg.FFmpegPath)
	case "native":
		backend = convert.NewNative()
	default:
		return nil, fmt.Errorf("unknown conversion backend %q", cfg.Backend)
	}
	return convert.NewPool(backend, cfg.Workers, logger.With(slog.String("component", "convert")))
}

func newEngine(cfg config.TranscriptionConfig, sampleRate int, logger *slog.Logger, m *metrics.Metrics) (transcription.Engine, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Engine {
	case "whisper_cpp":
		w, err := transcription.NewWhisperCPP(cfg.ModelPath, cfg.Language, cfg.Threads, logger)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	case "http":
		c, err := transcription.NewHTTPClient(transcription.HTTPConfig{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Timeout:       cfg.GetTimeoutDuration(),
			MaxRetries:    cfg.MaxRetries,
			MaxConcurrent: cfg.MaxConcurrent,
			SampleRate:    sampleRate,
			Language:      cfg.Language,
			Model:         cfg.Model,
		}, m)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case "openai":
		o, err := transcription.NewOpenAI(transcription.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Language:   cfg.Language,
			SampleRate: sampleRate,
		})
		if err != nil {
			return nil, nil, err
		}
		return o, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown transcription engine %q", cfg.Engine)
	}
}

func newSource(cfg config.CaptureConfig, logger *slog.Logger, m *metrics.Metrics) (capture.Source, error) {
	logger = logger.With(slog.String("component", "capture"))
	switch cfg.Source {
	case "command":
		src, err := capture.StartCommand(cfg.Command, cfg.Format(), cfg.FrameMs, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "stdin":
		src, err := capture.NewReader(os.Stdin, cfg.Format(), cfg.FrameMs)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "udp":
		src, err := capture.ListenUDP(capture.UDPConfig{
			Address:    cfg.UDP.Address,
			Format:     cfg.Format(),
			FrameMs:    cfg.FrameMs,
			BufferSize: cfg.UDP.BufferSize,
			MaxGap:     uint32(cfg.UDP.MaxGap),
			QueueSize:  cfg.UDP.QueueSize,
		}, logger, m)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("%w: unknown source %q", capture.ErrNoDevice, cfg.Source)
	}
}
