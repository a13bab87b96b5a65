package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomchat/loom/internal/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ProviderEmbedder turns node content into vectors via a langchaingo
// embeddings client. Every vector is checked against the configured
// dimension so a misconfigured model is caught at the boundary instead
// of corrupting similarity scores later.
type ProviderEmbedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
}

var _ Embedder = (*ProviderEmbedder)(nil)

// NewEmbedder creates the embedder named by cfg.EmbedProvider.
func NewEmbedder(cfg config.Config) (*ProviderEmbedder, error) {
	client, err := embeddingClient(cfg)
	if err != nil {
		return nil, err
	}

	model, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.EmbedProvider, err)
	}

	return &ProviderEmbedder{
		model:     model,
		dimension: cfg.EmbedDimension,
		modelName: cfg.EmbedModel,
	}, nil
}

func embeddingClient(cfg config.Config) (embeddings.EmbedderClient, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		client, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		client, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}
}

// Embed generates the embedding vector for a single text.
func (e *ProviderEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one provider call.
func (e *ProviderEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embed(ctx, texts)
}

func (e *ProviderEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("embedding failed",
			"model", e.modelName, "texts", len(texts),
			"duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", i, len(v), e.dimension)
		}
	}

	slog.Debug("embedding complete",
		"model", e.modelName, "texts", len(texts),
		"duration_ms", duration.Milliseconds())
	return vectors, nil
}

// Model returns the embedding model name.
func (e *ProviderEmbedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *ProviderEmbedder) Dimension() int {
	return e.dimension
}
