// Package llm provides completion and embedding providers. Completions go
// through langchaingo (ollama, openai, anthropic) or AWS Bedrock; embeddings
// go through langchaingo with a deterministic local fallback so the tree
// keeps working without the network.
package llm

import (
	"context"
	"errors"
)

// Message is one turn of an ordered conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer generates a reply from a system prompt and an ordered message
// history. An empty reply with a nil error means "no usable reply" and is
// not a failure.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error)
}

// Embedder generates fixed-length embedding vectors for text.
// Embed must be idempotent for identical text; caching is permitted.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ErrNoChoices is returned when a provider responds without any candidate
// completion.
var ErrNoChoices = errors.New("no response choices")
