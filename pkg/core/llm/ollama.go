package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultOllamaURL is the local Ollama daemon.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider talks to Ollama's native /api/chat endpoint.
type OllamaProvider struct {
	baseURL     string
	client      *http.Client
	temperature float64
	jsonMode    bool
}

var _ Provider = (*OllamaProvider)(nil)

func NewOllamaProvider(cfg Config) *OllamaProvider {
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = DefaultOllamaURL
	}
	return &OllamaProvider{
		baseURL:     base,
		client:      cfg.httpClient(),
		temperature: cfg.Temperature,
		jsonMode:    cfg.JSONMode,
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error"`
}

func (p *OllamaProvider) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	if p.jsonMode {
		reqBody.Format = "json"
	}
	if p.temperature > 0 {
		reqBody.Options = map[string]any{"temperature": p.temperature}
	}

	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama call failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ollama response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &APIError{Provider: BackendOllama, StatusCode: res.StatusCode, Body: string(body)}
	}

	var response ollamaChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", response.Error)
	}
	return &ChatResponse{Model: response.Model, Message: response.Message}, nil
}
