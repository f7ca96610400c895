package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider for Google's Gemini models through the
// official GenAI SDK.
type GeminiProvider struct {
	client      *genai.Client
	temperature float64
	jsonMode    bool
}

// Ensure interface compliance
var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates the SDK client once; cfg.APIKey is required.
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an api key (GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{client: client, temperature: cfg.Temperature, jsonMode: cfg.JSONMode}, nil
}

// Chat maps system messages to the system instruction and the remaining
// turns to user/model contents.
func (p *GeminiProvider) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	contents, system := toGeminiContents(messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini chat needs at least one user message")
	}

	config := &genai.GenerateContentConfig{}
	if p.temperature > 0 {
		config.Temperature = genai.Ptr(float32(p.temperature))
	}
	if p.jsonMode {
		config.ResponseMIMEType = "application/json"
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	result, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}
	return &ChatResponse{
		Model:   model,
		Message: Message{Role: RoleAssistant, Content: result.Text()},
	}, nil
}

func toGeminiContents(messages []Message) ([]*genai.Content, string) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}
