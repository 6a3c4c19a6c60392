package llm

import (
	"context"
	"fmt"
	"tani-assist-go/internal/config"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

// geminiClient calls the Gemini API through the official genai SDK.
type geminiClient struct {
	cfg    config.LLMConfig
	client *genai.Client
}

func newGeminiClient(ctx context.Context, cfg config.LLMConfig) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiClient{cfg: cfg, client: client}, nil
}

// toGeminiContents splits the system prompt out of the conversation and maps
// assistant turns to the "model" role Gemini expects.
func toGeminiContents(messages []Message) (system *genai.Content, contents []*genai.Content) {
	var systemParts []*genai.Part
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, genai.NewPartFromText(m.Content))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(m.Content)}, genai.RoleModel))
		default:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			if m.Image != nil {
				parts = append(parts, genai.NewPartFromBytes(m.Image.Data, m.Image.MIMEType))
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	return system, contents
}

func generateConfig(system *genai.Content, gen *GenerationParams) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{SystemInstruction: system}
	if gen == nil {
		return gc
	}
	if gen.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*gen.Temperature))
	}
	if gen.TopP != nil {
		gc.TopP = genai.Ptr(float32(*gen.TopP))
	}
	if gen.MaxTokens != nil {
		gc.MaxOutputTokens = int32(*gen.MaxTokens)
	}
	return gc
}

func (c *geminiClient) params(gen *GenerationParams) *GenerationParams {
	if gen != nil {
		return gen
	}
	return ParamsFromConfig(c.cfg.Generation)
}

// Chat sends the conversation and returns the full response text.
func (c *geminiClient) Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	system, contents := toGeminiContents(messages)
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, generateConfig(system, c.params(gen)))
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

// StreamChat relays every streamed candidate chunk to writer.
func (c *geminiClient) StreamChat(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	system, contents := toGeminiContents(messages)
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.cfg.Model, contents, generateConfig(system, c.params(gen))) {
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		if err := writer.WriteMessage(websocket.TextMessage, []byte(chunk)); err != nil {
			return fmt.Errorf("failed to write stream chunk: %w", err)
		}
	}
	return nil
}
