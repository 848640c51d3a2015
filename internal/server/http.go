package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/annotate"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/config"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/metrics"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/sentence"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/session"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/transcript"
)

const (
	serviceName    = "livescribe"
	serviceVersion = "1.0.0"
)

// HTTPServer provides the operator API and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	config   *config.Config
	session  *session.Session
	hub      *Hub
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	unsubscribe func()
	startTime   time.Time
}

// NewHTTPServer creates the HTTP API server and subscribes its WebSocket hub
// to the session. gatherer serves /metrics; nil uses the default registry.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	sess *session.Session, gatherer prometheus.Gatherer, m *metrics.Metrics) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		session:   sess,
		hub:       NewHub(logger, m),
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}
	h.hub.snapshot = h.snapshot
	h.unsubscribe = sess.Subscribe(h.hub)

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        cfg.Addr(),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// Handler returns the routed handler.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/transcript", h.withMetrics("/transcript", h.handleTranscript))
	mux.HandleFunc("/prompts", h.withMetrics("/prompts", h.handlePrompts))
	mux.HandleFunc("/selection", h.withMetrics("/selection", h.handleSelection))
	mux.HandleFunc("/annotate", h.withMetrics("/annotate", h.handleAnnotate))

	// WebSocket upgrades need the raw ResponseWriter, so no metrics wrapper
	mux.Handle("/ws", h.hub)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), time.Since(startTime).Seconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listen address and serves in the background.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	h.logger.Info("Starting HTTP API server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (h *HTTPServer) Addr() string {
	if h.listener == nil {
		return h.server.Addr
	}
	return h.listener.Addr().String()
}

// Stop gracefully stops the HTTP server and disconnects display clients
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	h.unsubscribe()
	h.hub.Close()
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.session.Stats()
	status := "healthy"
	if !stats.Running {
		status = "stopped"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]any{
			"segmentation": map[string]any{
				"state":        stats.Segmentation.State,
				"total_frames": stats.Segmentation.TotalFrames,
			},
			"transcription": map[string]any{
				"processed": stats.Transcription.Processed,
				"dropped":   stats.Transcription.Dropped,
				"pending":   stats.Transcription.Pending,
			},
			"annotation": map[string]any{
				"mode": stats.AnnotationMode,
				"busy": stats.AnnotationBusy,
			},
			"display": map[string]any{
				"clients": h.hub.Clients(),
			},
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime":          time.Since(h.startTime).String(),
		"timestamp":       time.Now().UTC(),
		"session":         h.session.Stats(),
		"display_clients": h.hub.Clients(),
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config == nil {
		writeError(w, http.StatusNotFound, "configuration not available")
		return
	}

	c := h.config
	// API keys are intentionally omitted
	writeJSON(w, http.StatusOK, map[string]any{
		"capture": map[string]any{
			"source":      c.Capture.Source,
			"sample_rate": c.Capture.SampleRate,
			"channels":    c.Capture.Channels,
			"frame_ms":    c.Capture.FrameMs,
		},
		"recording": map[string]any{
			"record_seconds":          c.Recording.RecordSeconds,
			"max_record_seconds":      c.Recording.MaxRecordSeconds,
			"required_silence_frames": c.Recording.RequiredSilenceFrames,
			"vad_mode":                c.Recording.VADMode,
			"save_wav":                c.Recording.SaveWAV,
		},
		"conversion": map[string]any{
			"backend":            c.Conversion.Backend,
			"workers":            c.Conversion.Workers,
			"target_sample_rate": c.Conversion.TargetSampleRate,
		},
		"transcription": map[string]any{
			"engine":   c.Transcription.Engine,
			"endpoint": c.Transcription.Endpoint,
			"language": c.Transcription.Language,
			"model":    c.Transcription.Model,
		},
		"completion": map[string]any{
			"model":       c.Completion.Model,
			"streaming":   c.Completion.Streaming,
			"max_tokens":  c.Completion.MaxTokens,
			"temperature": c.Completion.Temperature,
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	})
}

type transcriptView struct {
	Type      string               `json:"type"`
	Text      string               `json:"text"`
	Segments  []transcript.Segment `json:"segments"`
	Sentences []sentence.Span      `json:"sentences"`
	Selection sentence.Span        `json:"selection"`
}

func (h *HTTPServer) snapshot() any {
	idx := h.session.Index()
	return transcriptView{
		Type:      "snapshot",
		Text:      h.session.Transcript().Text(),
		Segments:  h.session.Transcript().Segments(),
		Sentences: idx.Spans(),
		Selection: idx.Selection(),
	}
}

// handleTranscript implements the /transcript endpoint
func (h *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// handlePrompts implements the /prompts endpoint
func (h *HTTPServer) handlePrompts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default": annotate.DefaultPrompt,
		"prompts": h.session.Prompts().Entries(),
	})
}

type selectionRequest struct {
	Command sentence.Command `json:"command"`
}

type selectionResponse struct {
	Selection sentence.Span `json:"selection"`
	Text      string        `json:"text"`
}

// handleSelection implements POST /selection
func (h *HTTPServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sel, err := h.session.Select(req.Command)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, err := h.session.Transcript().Slice(sel.Start, sel.End)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse{Selection: sel, Text: text})
}

type annotateRequest struct {
	Prompt int    `json:"prompt"`
	Text   string `json:"text"`
}

// handleAnnotate implements POST /annotate
func (h *HTTPServer) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req annotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := h.session.Annotate(r.Context(), req.Prompt, req.Text)
	switch {
	case errors.Is(err, annotate.ErrAnnotationInFlight):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, annotate.ErrEmptyText):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("Annotation failed", slog.Int("prompt", req.Prompt), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	status := http.StatusOK
	if a.Mode == annotate.ModeStreaming {
		status = http.StatusAccepted
	}
	writeJSON(w, status, a)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]any{
			"GET /":           "API documentation",
			"GET /health":     "Service health check",
			"GET /stats":      "Pipeline statistics",
			"GET /config":     "Service configuration without secrets",
			"GET /transcript": "Transcript, sentences and selection",
			"GET /prompts":    "Configured annotation prompts",
			"POST /selection": `Move the selection: {"command": "extend-left|shrink-right|select-previous|select-next|clear"}`,
			"POST /annotate":  `Annotate text or the selection: {"prompt": 1, "text": ""}`,
			"GET /ws":         "WebSocket feed of transcript updates",
			"GET /metrics":    "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
