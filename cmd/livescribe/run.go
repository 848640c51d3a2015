package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/config"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/logging"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/metrics"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/server"
)

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("capture_source", cfg.Capture.Source),
		slog.String("capture_format", cfg.Capture.Format().String()),
		slog.Int("frame_ms", cfg.Capture.FrameMs),
		slog.Float64("record_seconds", cfg.Recording.RecordSeconds),
		slog.Float64("max_record_seconds", cfg.Recording.MaxRecordSeconds),
		slog.Int("required_silence_frames", cfg.Recording.RequiredSilenceFrames),
		slog.Int("vad_mode", cfg.Recording.VADMode),
		slog.String("conversion_backend", cfg.Conversion.Backend),
		slog.String("transcription_engine", cfg.Transcription.Engine),
		slog.String("completion_model", cfg.Completion.Model),
		slog.Bool("completion_streaming", cfg.Completion.Streaming),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)
	logger.Info("Prometheus metrics initialized")

	p, err := buildPipeline(cfg, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to build pipeline", slog.String("error", err.Error()))
		return err
	}
	defer p.close(logger)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger.With(slog.String("component", "http")), cfg, p.session, reg, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			return err
		}
	}

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// first signal drains the queue, the second one interrupts it
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		p.session.Stop()

		select {
		case sig = <-sigChan:
			logger.Warn("Received second signal, aborting in-flight work", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("Service started successfully, waiting for signals...")
	runErr := p.session.Run(ctx)
	if runErr != nil {
		logger.Error("Session ended with error", slog.String("error", runErr.Error()))
	}

	logger.Info("Starting graceful shutdown...")
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := p.session.Stats()
	logger.Info("Final session statistics",
		slog.Uint64("frames", stats.Segmentation.TotalFrames),
		slog.Uint64("silence_chunks", stats.Segmentation.SilenceChunks),
		slog.Uint64("ceiling_chunks", stats.Segmentation.CeilingChunks),
		slog.Uint64("transcribed", stats.Transcription.Processed),
		slog.Uint64("dropped", stats.Transcription.Dropped),
		slog.Int("transcript_bytes", stats.TranscriptBytes),
	)

	logger.Info("Service stopped")
	return runErr
}
