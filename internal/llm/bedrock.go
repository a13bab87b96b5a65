package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/loomchat/loom/internal/config"
)

// Bedrock is a Completer backed by the AWS Bedrock Converse API.
type Bedrock struct {
	client  *bedrockruntime.Client
	modelID string
	retry   RetryConfig
}

var _ Completer = (*Bedrock)(nil)

// NewBedrock creates a Bedrock completer using the default AWS credential
// chain and the configured region.
func NewBedrock(ctx context.Context, cfg config.Config) (*Bedrock, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Bedrock{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.LLMModel,
		retry:   DefaultRetryConfig(),
	}, nil
}

// Complete generates a reply via the Converse API. Bedrock requires strictly
// alternating user/assistant turns, so consecutive same-role messages are
// merged before the call.
func (b *Bedrock) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(b.modelID),
		Messages: toBedrockMessages(messages),
	}
	if systemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		}
	}

	var reply string
	err := Retry(ctx, b.retry, func() error {
		start := time.Now()
		out, err := b.client.Converse(ctx, input)
		if err != nil {
			slog.Warn("bedrock converse failed", "model", b.modelID, "duration_ms", time.Since(start).Milliseconds(), "error", err)
			return err
		}

		msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
		if !ok || len(msg.Value.Content) == 0 {
			return ErrNoChoices
		}
		text, ok := msg.Value.Content[0].(*types.ContentBlockMemberText)
		if !ok {
			return ErrNoChoices
		}
		reply = text.Value
		slog.Debug("bedrock converse complete", "model", b.modelID, "duration_ms", time.Since(start).Milliseconds(), "reply_len", len(reply))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("bedrock complete: %w", err)
	}

	return reply, nil
}

func toBedrockMessages(messages []Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}

		if n := len(out); n > 0 && out[n-1].Role == role {
			prev := out[n-1].Content[0].(*types.ContentBlockMemberText)
			prev.Value += "\n\n" + msg.Content
			continue
		}

		out = append(out, types.Message{
			Role: role,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: msg.Content},
			},
		})
	}
	return out
}
