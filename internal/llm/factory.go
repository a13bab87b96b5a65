package llm

import (
	"context"

	"github.com/loomchat/loom/internal/config"
)

// NewCompleter creates a Completer for the configured provider.
func NewCompleter(ctx context.Context, cfg config.Config) (Completer, error) {
	if cfg.LLMProvider == config.ProviderBedrock {
		return NewBedrock(ctx, cfg)
	}
	return NewModel(cfg)
}
