// Package llm provides clients for the hosted chat models used by the assistant.
package llm

import (
	"context"
	"fmt"
	"tani-assist-go/internal/config"
)

// Roles understood by every provider. Providers translate them to their own vocabulary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageWriter defines an interface for writing streamed chunks.
// A websocket.Conn satisfies it, as does the service's capturing interceptor.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Image is an inline image attached to a user message.
type Image struct {
	Data     []byte
	MIMEType string
}

// Message 表示一条角色消息
type Message struct {
	Role    string
	Content string
	Image   *Image
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Client defines the interface for an LLM client.
type Client interface {
	// Chat sends the whole conversation and returns the complete answer text.
	Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// StreamChat sends the conversation and writes every answer chunk to writer.
	StreamChat(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "gemini", "":
		return newGeminiClient(ctx, cfg)
	case "openai":
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// ParamsFromConfig converts configured generation settings, returning nil when none are set.
func ParamsFromConfig(cfg config.LLMGenerationConfig) *GenerationParams {
	var gp GenerationParams
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		gp.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		gp.TopP = &p
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}
