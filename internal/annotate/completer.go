package annotate

import (
	"context"
)

// Request is one completion call. Prompt is the user message; SystemPrompt
// carries the operator's chosen template.
type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
}

// Completer is the chat completion collaborator.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields answer increments in arrival order. Recv returns io.EOF once
// the answer is complete.
type Stream interface {
	Recv() (string, error)
	Close() error
}
