package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

func TestNewHTTPClientValidation(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{}, nil)
	assert.Error(t, err)

	c, err := NewHTTPClient(HTTPConfig{Endpoint: "http://localhost"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 16000, c.config.SampleRate)
	assert.Equal(t, 30*time.Second, c.config.Timeout)
}

func TestHTTPClientTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "pl", r.FormValue("language"))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		buf := make([]byte, 44)
		_, err = f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "RIFF", string(buf[:4]))

		json.NewEncoder(w).Encode(Response{
			Text:     " Hello world.",
			Segments: []ResponseSegment{{Text: " Hello"}, {Text: " world."}},
		})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{Endpoint: srv.URL, APIKey: "secret", Language: "pl"}, nil)
	require.NoError(t, err)

	texts, err := c.Transcribe(context.Background(), make([]float32, 1600))
	require.NoError(t, err)
	assert.Equal(t, []string{" Hello", " world."}, texts)

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.SuccessRequests)
	assert.Equal(t, float64(100), stats.SuccessRate)
}

func TestHTTPClientTextOnlyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"plain"}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{Endpoint: srv.URL}, nil)
	require.NoError(t, err)

	texts, err := c.Transcribe(context.Background(), make([]float32, 160))
	require.NoError(t, err)
	assert.Equal(t, []string{"plain"}, texts)
}

func TestHTTPClientRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{Endpoint: srv.URL, MaxRetries: 3, BackoffBase: time.Millisecond}, nil)
	require.NoError(t, err)

	texts, err := c.Transcribe(context.Background(), make([]float32, 160))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, texts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(2), c.GetStats().TotalRetries)
}

func TestHTTPClientNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{Endpoint: srv.URL, MaxRetries: 3, BackoffBase: time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.Transcribe(context.Background(), make([]float32, 160))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP error 400")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), c.GetStats().FailedRequests)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &statusError{code: 502}, true},
		{"rate limited", &statusError{code: 429}, true},
		{"bad request", &statusError{code: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"parse error", errors.New("failed to parse response JSON"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestEmptySamplesSkipRequest(t *testing.T) {
	c, err := NewHTTPClient(HTTPConfig{Endpoint: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)
	texts, err := c.Transcribe(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, texts)
}

func TestOpenAIEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"task":"transcribe","language":"polish","duration":0.1,"text":" Dzień dobry.","segments":[{"id":0,"start":0,"end":0.1,"text":" Dzień"},{"id":1,"start":0.1,"end":0.2,"text":" dobry."}]}`))
	}))
	defer srv.Close()

	engine, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	texts, err := engine.Transcribe(context.Background(), audio.Normalize(make([]byte, 3200)))
	require.NoError(t, err)
	assert.Equal(t, []string{" Dzień", " dobry."}, texts)
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}
