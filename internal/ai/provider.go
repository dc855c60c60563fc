package ai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sitebot/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrEmptyInput        = errors.New("embedding input is empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyCompletion   = errors.New("empty completion")
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatProvider is a chat-completion backend.
type ChatProvider interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	// StreamComplete calls onChunk for every text delta and returns the
	// concatenated text. On failure the text received so far is returned
	// together with the error.
	StreamComplete(ctx context.Context, messages []ChatMessage, onChunk func(chunk string) error) (string, error)
}

// Embedder turns text into vectors of a single fixed dimensionality.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// NewChatProvider picks the chat backend named by llm.provider.
func NewChatProvider(cfg config.LLMConfig, logger *zap.Logger) (ChatProvider, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIChat(cfg, logger), nil
	case "anthropic":
		return NewAnthropicChat(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// splitSystem separates system instructions from the conversation, for
// providers that take them out of band.
func splitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var system string
	rest := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
