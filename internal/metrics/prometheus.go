package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the live transcription pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Capture and segmentation metrics
	FramesCaptured prometheus.Counter
	InvalidFrames  prometheus.Counter
	SpeechFrames   prometheus.Counter
	ChunksFlushed  *prometheus.CounterVec
	ChunkDuration  prometheus.Histogram
	ChunkSize      prometheus.Histogram
	ChunkQueueSize prometheus.Gauge
	PacketsLost    prometheus.Counter

	// Conversion metrics
	ConversionDuration prometheus.Histogram
	ConversionFailures *prometheus.CounterVec

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter
	TranscriptBytes        prometheus.Gauge

	// Annotation metrics
	Annotations         *prometheus.CounterVec
	AnnotationsRejected prometheus.Counter
	StreamIncrements    prometheus.Counter
	StreamErrors        prometheus.Counter
	AnnotationDuration  *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	DisplayClients      prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. Tests pass a
// fresh prometheus.NewRegistry(); the binary passes prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Capture and segmentation metrics
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_frames_captured_total",
			Help: "Total number of audio frames read from the capture source",
		}),
		InvalidFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_frames_invalid_total",
			Help: "Total number of frames rejected by the frame validator or VAD",
		}),
		SpeechFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_frames_speech_total",
			Help: "Total number of frames classified as speech",
		}),
		ChunksFlushed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_chunks_flushed_total",
			Help: "Total number of utterance chunks flushed, by reason",
		}, []string{"reason"}),
		ChunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_chunk_duration_seconds",
			Help:    "Duration of flushed utterance chunks",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		ChunkSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_chunk_size_bytes",
			Help:    "Size of flushed utterance chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		ChunkQueueSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "livescribe_chunk_queue_size",
			Help: "Current number of chunks waiting for transcription",
		}),
		PacketsLost: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_udp_packets_lost_total",
			Help: "Total number of UDP audio packets detected as lost",
		}),

		// Conversion metrics
		ConversionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_conversion_duration_seconds",
			Help:    "Time spent converting chunks to the transcription format",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		ConversionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_conversion_failures_total",
			Help: "Total number of failed conversions, by backend",
		}, []string{"backend"}),

		// Transcription metrics
		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_transcription_requests_total",
			Help: "Total number of transcription requests",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_transcription_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_transcription_failures_total",
			Help: "Total number of failed transcriptions",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		TranscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),
		TranscriptBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "livescribe_transcript_bytes",
			Help: "Current size of the transcript in bytes",
		}),

		// Annotation metrics
		Annotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_annotations_total",
			Help: "Total number of annotation requests, by mode and result",
		}, []string{"mode", "result"}),
		AnnotationsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_annotations_rejected_total",
			Help: "Total number of annotation requests rejected because one was in flight",
		}),
		StreamIncrements: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_annotation_stream_increments_total",
			Help: "Total number of streamed completion increments appended",
		}),
		StreamErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_annotation_stream_errors_total",
			Help: "Total number of streamed completion increments that failed",
		}),
		AnnotationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livescribe_annotation_duration_seconds",
			Help:    "Duration of annotation requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"mode"}),

		// HTTP API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livescribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		DisplayClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "livescribe_display_clients",
			Help: "Current number of connected display websocket clients",
		}),
	}
}

// RecordFrame records a captured frame and its classification.
func (m *Metrics) RecordFrame(valid, speech bool) {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
	if !valid {
		m.InvalidFrames.Inc()
	}
	if speech {
		m.SpeechFrames.Inc()
	}
}

// RecordChunk records a flushed chunk
func (m *Metrics) RecordChunk(reason string, durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunksFlushed.WithLabelValues(reason).Inc()
	m.ChunkDuration.Observe(durationSeconds)
	m.ChunkSize.Observe(float64(sizeBytes))
}

// SetQueueSize sets the current chunk queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.ChunkQueueSize.Set(float64(size))
}

// RecordPacketsLost adds n lost UDP packets
func (m *Metrics) RecordPacketsLost(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PacketsLost.Add(float64(n))
}

// RecordConversion records a conversion attempt
func (m *Metrics) RecordConversion(backend string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.ConversionDuration.Observe(durationSeconds)
	if err != nil {
		m.ConversionFailures.WithLabelValues(backend).Inc()
	}
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Inc()
}

// SetTranscriptBytes sets the transcript size gauge
func (m *Metrics) SetTranscriptBytes(n int) {
	if m == nil {
		return
	}
	m.TranscriptBytes.Set(float64(n))
}

// RecordAnnotation records a finished annotation request
func (m *Metrics) RecordAnnotation(mode, result string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.Annotations.WithLabelValues(mode, result).Inc()
	m.AnnotationDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordAnnotationRejected increments the rejected annotations counter
func (m *Metrics) RecordAnnotationRejected() {
	if m == nil {
		return
	}
	m.AnnotationsRejected.Inc()
}

// RecordStreamIncrement records one streamed increment
func (m *Metrics) RecordStreamIncrement(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.StreamErrors.Inc()
		return
	}
	m.StreamIncrements.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// SetDisplayClients sets the number of connected display clients
func (m *Metrics) SetDisplayClients(n int) {
	if m == nil {
		return
	}
	m.DisplayClients.Set(float64(n))
}
