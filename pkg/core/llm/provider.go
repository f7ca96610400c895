package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatResponse carries the model's reply.
type ChatResponse struct {
	Model   string
	Message Message
}

// Provider is the interface for all model backends.
type Provider interface {
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, model string, messages []Message) (*ChatResponse, error)

func (f ProviderFunc) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	return f(ctx, model, messages)
}

// APIError is returned when a backend answers with a non-2xx status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s api error: status=%d body=%s", e.Provider, e.StatusCode, body)
}

// Backend names accepted by NewProvider.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string
	Model       string
	APIURL      string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	// JSONMode asks the backend to constrain output to a JSON object.
	JSONMode bool
}

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "llama3.2"

// ModelName returns the configured model or the default.
func (c Config) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel
}

func (c Config) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

// NewProvider builds the backend named in cfg.Backend.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendOllama:
		return NewOllamaProvider(cfg), nil
	case BackendOpenAI:
		return NewOpenAIProvider(cfg)
	case BackendGemini:
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Backend)
	}
}
