package transcription

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

// OpenAIConfig configures the OpenAI transcription engine.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Language   string
	SampleRate int
}

// OpenAI transcribes through the OpenAI audio transcription API.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAI creates an OpenAI transcription engine.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai transcription requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Transcribe implements Engine.
func (o *OpenAI) Transcribe(ctx context.Context, samples []float32) ([]string, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	wav, err := audio.EncodeWAV(audio.Denormalize(samples), o.cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.cfg.Model,
		FilePath: "chunk.wav",
		Reader:   bytes.NewReader(wav),
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: o.cfg.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	if len(resp.Segments) > 0 {
		texts := make([]string, len(resp.Segments))
		for i, s := range resp.Segments {
			texts[i] = s.Text
		}
		return texts, nil
	}
	if resp.Text == "" {
		return nil, nil
	}
	return []string{resp.Text}, nil
}
