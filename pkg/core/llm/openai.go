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

// OpenAIProvider speaks the OpenAI-compatible /chat/completions protocol
// (OpenAI, DeepSeek, vLLM, LM Studio, Ollama's /v1).
type OpenAIProvider struct {
	url         string
	apiKey      string
	client      *http.Client
	temperature float64
	jsonMode    bool
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider requires cfg.APIURL, the API root such as
// "https://api.deepseek.com" or "http://localhost:11434/v1".
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		return nil, fmt.Errorf("openai provider requires an api url")
	}
	url := base
	if !strings.HasSuffix(url, "/chat/completions") {
		url += "/chat/completions"
	}
	return &OpenAIProvider{
		url:         url,
		apiKey:      cfg.APIKey,
		client:      cfg.httpClient(),
		temperature: cfg.Temperature,
		jsonMode:    cfg.JSONMode,
	}, nil
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	reqBody := chatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	if p.temperature > 0 {
		t := p.temperature
		reqBody.Temperature = &t
	}
	if p.jsonMode {
		reqBody.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat call failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &APIError{Provider: BackendOpenAI, StatusCode: res.StatusCode, Body: string(body)}
	}

	var response chatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("chat response has no choices: %s", string(body))
	}
	return &ChatResponse{Model: response.Model, Message: response.Choices[0].Message}, nil
}
