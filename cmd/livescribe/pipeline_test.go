package main

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/capture"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/config"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/transcription"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestNewConverter(t *testing.T) {
	pool, err := newConverter(config.ConversionConfig{Backend: "native", Workers: 1}, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, pool.Close())

	_, err = newConverter(config.ConversionConfig{Backend: "sox", Workers: 1}, discardLogger())
	assert.Error(t, err)
}

func TestNewEngine(t *testing.T) {
	engine, closeEngine, err := newEngine(config.TranscriptionConfig{
		Engine: "http", Endpoint: "http://127.0.0.1:1/inference", Timeout: 1, MaxConcurrent: 1,
	}, 16000, discardLogger(), nil)
	require.NoError(t, err)
	assert.IsType(t, &transcription.HTTPClient{}, engine)
	assert.NoError(t, closeEngine())

	engine, _, err = newEngine(config.TranscriptionConfig{Engine: "openai", APIKey: "sk-test"}, 16000, discardLogger(), nil)
	require.NoError(t, err)
	assert.IsType(t, &transcription.OpenAI{}, engine)

	_, _, err = newEngine(config.TranscriptionConfig{Engine: "vosk"}, 16000, discardLogger(), nil)
	assert.Error(t, err)
}

func TestNewSource(t *testing.T) {
	cfg := config.Default().Capture

	cfg.Source = "udp"
	cfg.UDP.Address = "127.0.0.1:0"
	src, err := newSource(cfg, discardLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Format(), src.Format())
	assert.NoError(t, src.Close())

	cfg.Source = "command"
	cfg.Command = nil
	_, err = newSource(cfg, discardLogger(), nil)
	assert.ErrorIs(t, err, capture.ErrNoDevice)

	cfg.Source = "loopback"
	_, err = newSource(cfg, discardLogger(), nil)
	assert.ErrorIs(t, err, capture.ErrNoDevice)
}

func TestPromptsCommand(t *testing.T) {
	t.Setenv(config.EnvOpenAIAPIKey, "")
	t.Setenv(config.EnvTranscriptionAPIKey, "")

	dir := t.TempDir()
	path := dir + "/config.yaml"
	yaml := `
capture:
  source: stdin
transcription:
  endpoint: "http://127.0.0.1:8081/inference"
completion:
  api_key: "sk-test"
  prompts:
    P1: "Podsumuj w punktach"
    P2: "Przetłumacz"
`
	require.NoError(t, writeFile(path, yaml))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"prompts", "--config", path})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{"P1: Podsumuj w punktach", "P2: Przetłumacz", "default: Podsumuj"}, lines)

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"check-config", "--config", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ok (source=stdin, engine=http")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
