package annotate

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures OpenAICompleter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAICompleter implements Completer with OpenAI chat completions.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer for cfg.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai completion requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(clientCfg), model: cfg.Model}, nil
}

func (c *OpenAICompleter) request(req Request, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(req, false))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream implements Completer.
func (c *OpenAICompleter) Stream(ctx context.Context, req Request) (Stream, error) {
	s, err := c.client.CreateChatCompletionStream(ctx, c.request(req, true))
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	return &openAIStream{s: s}, nil
}

type openAIStream struct {
	s *openai.ChatCompletionStream
}

func (o *openAIStream) Recv() (string, error) {
	resp, err := o.s.Recv()
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (o *openAIStream) Close() error {
	return o.s.Close()
}
