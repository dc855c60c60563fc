package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"sitebot/internal/config"
)

type AnthropicChat struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

func NewAnthropicChat(cfg config.LLMConfig, logger *zap.Logger) *AnthropicChat {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" && !strings.Contains(cfg.BaseURL, "openai.com") {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicChat{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger.Named("anthropic-chat"),
	}
}

func (c *AnthropicChat) request(messages []ChatMessage) anthropic.MessagesRequest {
	system, rest := splitSystem(messages)
	msgs := make([]anthropic.Message, 0, len(rest))
	for _, m := range rest {
		text := m.Content
		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		msgs = append(msgs, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{{Type: "text", Text: &text}},
		})
	}
	return anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		System:    system,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
	}
}

func (c *AnthropicChat) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	resp, err := c.client.CreateMessages(ctx, c.request(messages))
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", ErrEmptyCompletion
}

func (c *AnthropicChat) StreamComplete(ctx context.Context, messages []ChatMessage, onChunk func(chunk string) error) (string, error) {
	var full strings.Builder
	var sinkErr error

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	_, err := c.client.CreateMessagesStream(streamCtx, anthropic.MessagesStreamRequest{
		MessagesRequest: c.request(messages),
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if sinkErr != nil || data.Delta.Text == nil || *data.Delta.Text == "" {
				return
			}
			text := *data.Delta.Text
			full.WriteString(text)
			if err := onChunk(text); err != nil {
				sinkErr = err
				cancel()
			}
		},
	})
	if sinkErr != nil {
		return full.String(), sinkErr
	}
	if err != nil {
		c.logger.Warn("anthropic stream failed", zap.Error(err))
		return full.String(), fmt.Errorf("anthropic stream failed: %w", err)
	}
	return full.String(), nil
}
