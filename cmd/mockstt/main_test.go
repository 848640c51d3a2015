package main

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/transcription"
)

func TestHandlerAnswersHTTPClient(t *testing.T) {
	h := &handler{text: "Halo.", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	srv := httptest.NewServer(h)
	defer srv.Close()

	client, err := transcription.NewHTTPClient(transcription.HTTPConfig{Endpoint: srv.URL, Language: "pl"}, nil)
	require.NoError(t, err)

	texts, err := client.Transcribe(context.Background(), make([]float32, 16000))
	require.NoError(t, err)
	assert.Equal(t, []string{"Halo."}, texts)
}
