package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type fakeCompleter struct {
	answer string
	err    error
	gate   chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, req annotate.Request) (string, error) {
	return f.answer, f.err
}

func (f *fakeCompleter) Stream(ctx context.Context, req annotate.Request) (annotate.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &gatedStream{gate: f.gate, parts: []string{f.answer}}, nil
}

type gatedStream struct {
	gate  chan struct{}
	parts []string
}

func (s *gatedStream) Recv() (string, error) {
	<-s.gate
	if len(s.parts) == 0 {
		return "", io.EOF
	}
	p := s.parts[0]
	s.parts = s.parts[1:]
	return p, nil
}

func (s *gatedStream) Close() error { return nil }

type fixture struct {
	srv     *httptest.Server
	http    *HTTPServer
	session *session.Session
}

func newFixture(t *testing.T, completer annotate.Completer, mode annotate.Mode) *fixture {
	t.Helper()

	src, err := capture.NewReader(bytes.NewReader(nil), audio.Format{SampleRate: 16000, Channels: 1}, 10)
	require.NoError(t, err)
	classifier, err := vad.NewProcessor(3)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	sess, err := session.New(session.Options{
		Source:     src,
		Classifier: classifier,
		Segment:    segment.Config{FrameMs: 10, TargetRecordMs: 2000, RequiredSilenceFrames: 10, MaxRecordMs: 10000},
		Converter:  convert.NewNative(),
		Engine: transcription.EngineFunc(func(ctx context.Context, samples []float32) ([]string, error) {
			return nil, nil
		}),
		TargetRate: 16000,
		Completer:  completer,
		Prompts:    annotate.NewPromptBook([]string{"Streść"}),
		Annotate:   annotate.Config{Mode: mode},
		Metrics:    m,
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Completion.APIKey = "sk-secret"
	h := NewHTTPServer(cfg.HTTP, nil, cfg, sess, reg, m)
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		h.hub.Close()
		srv.Close()
	})
	return &fixture{srv: srv, http: h, session: sess}
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (f *fixture) seed(text string) {
	f.session.Transcript().Append(text)
	f.session.Index().Reindex(f.session.Transcript().Text())
}

func TestHealthAndRoot(t *testing.T) {
	f := newFixture(t, &fakeCompleter{}, annotate.ModeBlocking)

	resp, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"livescribe"`)

	resp, body = f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "POST /annotate")

	resp, _ = f.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfigHidesSecrets(t *testing.T) {
	f := newFixture(t, &fakeCompleter{}, annotate.ModeBlocking)

	resp, body := f.get(t, "/config")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"target_sample_rate":16000`)
	assert.NotContains(t, string(body), "sk-secret")
}

func TestTranscriptAndPrompts(t *testing.T) {
	f := newFixture(t, &fakeCompleter{}, annotate.ModeBlocking)
	f.seed("Jeden. Dwa.")

	resp, body := f.get(t, "/transcript")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view transcriptView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "Jeden. Dwa.", view.Text)
	assert.Len(t, view.Sentences, 2)
	assert.Len(t, view.Segments, 1)

	_, body = f.get(t, "/prompts")
	assert.Contains(t, string(body), `"default":"Podsumuj"`)
	assert.Contains(t, string(body), "Streść")
}

func TestSelection(t *testing.T) {
	f := newFixture(t, &fakeCompleter{}, annotate.ModeBlocking)
	f.seed("Jeden. Dwa.")

	resp, out := f.post(t, "/selection", `{"command":"select-previous"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Dwa.", out["text"])

	resp, out = f.post(t, "/selection", `{"command":"extend-left"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Jeden. Dwa.", out["text"])

	resp, _ = f.post(t, "/selection", `{"command":"jump"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.post(t, "/selection", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	getResp, _ := f.get(t, "/selection")
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestAnnotateBlocking(t *testing.T) {
	f := newFixture(t, &fakeCompleter{answer: "Dwa zdania."}, annotate.ModeBlocking)

	resp, _ := f.post(t, "/annotate", `{"prompt":1,"text":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "nothing selected")

	f.seed("Jeden. Dwa.")
	f.session.Select("select-previous")

	resp, out := f.post(t, "/annotate", `{"prompt":1}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Streść", out["prompt"])
	assert.Equal(t, "Jeden. Dwa.\n*Dwa zdania.*\n", f.session.Transcript().Text())
}

func TestAnnotateCompletionFailure(t *testing.T) {
	f := newFixture(t, &fakeCompleter{err: errors.New("upstream down")}, annotate.ModeBlocking)

	resp, out := f.post(t, "/annotate", `{"prompt":2,"text":"coś"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, out["error"], "upstream down")
}

func TestAnnotateStreamingRejectsWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, &fakeCompleter{answer: "ok", gate: gate}, annotate.ModeStreaming)

	resp, _ := f.post(t, "/annotate", `{"prompt":1,"text":"pierwsze"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = f.post(t, "/annotate", `{"prompt":1,"text":"drugie"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(gate)
	require.Eventually(t, func() bool {
		return f.session.Transcript().Text() == "\n*ok*\n"
	}, time.Second, 5*time.Millisecond)
}

func TestWebSocketFeed(t *testing.T) {
	f := newFixture(t, &fakeCompleter{}, annotate.ModeBlocking)
	f.seed("Jeden. Dwa.")

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var snap transcriptView
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "snapshot", snap.Type)
	assert.Equal(t, "Jeden. Dwa.", snap.Text)
	assert.Equal(t, 1, f.http.hub.Clients())

	_, err = f.session.Select("select-previous")
	require.NoError(t, err)

	var update session.Update
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, session.UpdateSelection, update.Type)
	assert.Equal(t, 7, update.Selection.Start)
	assert.Equal(t, 11, update.Selection.End)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, &fakeCompleter{}, annotate.ModeBlocking)
	f.get(t, "/health")

	resp, body := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `livescribe_http_requests_total{endpoint="/health"`)
}
