package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomchat/loom/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps a langchaingo LLM for reply generation.
type Model struct {
	llm       llms.Model
	modelName string
	retry     RetryConfig
}

// Compile-time check that Model implements Completer.
var _ Completer = (*Model)(nil)

// NewModel creates a completion model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
		retry:     DefaultRetryConfig(),
	}, nil
}

// Complete generates a reply from a system prompt and ordered history.
func (m *Model) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	if systemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, msg := range messages {
		role := llms.ChatMessageTypeHuman
		if msg.Role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	var reply string
	err := Retry(ctx, m.retry, func() error {
		start := time.Now()
		response, err := m.llm.GenerateContent(ctx, content)
		if err != nil {
			slog.Warn("completion failed", "model", m.modelName, "duration_ms", time.Since(start).Milliseconds(), "error", err)
			return err
		}
		if len(response.Choices) == 0 {
			return ErrNoChoices
		}
		reply = response.Choices[0].Content
		slog.Debug("completion complete", "model", m.modelName, "duration_ms", time.Since(start).Milliseconds(), "reply_len", len(reply))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}

	return reply, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}
