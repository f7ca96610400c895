// Package config loads run settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"filing_signals/pkg/core/edgar"
	"filing_signals/pkg/core/ingest"
	"filing_signals/pkg/core/llm"
	"filing_signals/pkg/core/pipeline"
	"filing_signals/pkg/core/prompt"

	"gopkg.in/yaml.v2"
)

// DefaultPath is used when FILING_SIGNALS_CONFIG is unset.
const DefaultPath = "config/filing_signals.yaml"

type Config struct {
	SEC        SECConfig        `yaml:"sec"`
	Universe   UniverseConfig   `yaml:"universe"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Extraction ExtractionConfig `yaml:"extraction"`
	LLM        LLMConfig        `yaml:"llm"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type SECConfig struct {
	UserAgent   string `yaml:"user_agent"`
	ArchiveURL  string `yaml:"archive_url"`
	SharedLimit bool   `yaml:"shared_limit"`
	MaxRetries  int    `yaml:"max_retries"`
	// MinDelay overrides the pacing delay per call class
	// (feed, index_page, document, reference). Zero disables pacing.
	MinDelay map[string]time.Duration `yaml:"min_delay"`
}

type UniverseConfig struct {
	TickerFile string   `yaml:"ticker_file"`
	Tickers    []string `yaml:"tickers"` // overrides the S&P 500 page when set
}

type RetrievalConfig struct {
	FormType   string `yaml:"form_type"`
	MaxFilings int    `yaml:"max_filings"`
	StorePath  string `yaml:"store_path"`
}

type ExtractionConfig struct {
	Workers      int    `yaml:"workers"`
	MaxTextChars int    `yaml:"max_text_chars"`
	OutputPath   string `yaml:"output_path"`
	// PromptDir is walked for *.json prompts, each registered under its
	// path-derived ID (extraction/new_product.json -> extraction.new_product).
	PromptDir  string `yaml:"prompt_dir"`
	PromptFile string `yaml:"prompt_file"`
	PromptID   string `yaml:"prompt_id"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIURL      string        `yaml:"api_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
}

type DatabaseConfig struct {
	URL   string `yaml:"url"`
	Table string `yaml:"table"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		SEC: SECConfig{
			UserAgent:  ingest.DefaultUserAgent,
			ArchiveURL: ingest.ArchiveBaseURL,
			MaxRetries: 2,
		},
		Universe: UniverseConfig{TickerFile: "data/company_tickers.json"},
		Retrieval: RetrievalConfig{
			FormType:   edgar.DefaultFormType,
			MaxFilings: edgar.DefaultMaxFilings,
			StorePath:  "data/filing_data.json",
		},
		Extraction: ExtractionConfig{
			Workers:    pipeline.DefaultWorkers,
			OutputPath: "data/extracted_entities.csv",
			PromptID:   prompt.ExtractionPromptID,
		},
		LLM: LLMConfig{
			Provider: llm.BackendOllama,
			Model:    llm.DefaultModel,
			Timeout:  5 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the file named by FILING_SIGNALS_CONFIG (or DefaultPath) over
// the defaults and then applies environment overrides. A missing default
// file is not an error; a missing explicit file is.
func Load() (Config, error) {
	path := os.Getenv("FILING_SIGNALS_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.SEC.UserAgent, "SEC_USER_AGENT")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.APIURL, "LLM_API_URL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	if c.LLM.APIKey == "" && strings.EqualFold(c.LLM.Provider, llm.BackendGemini) {
		setString(&c.LLM.APIKey, "GEMINI_API_KEY")
	}
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Metrics.Addr, "METRICS_ADDR")

	if v := os.Getenv("EXTRACT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EXTRACT_WORKERS %q: %w", v, err)
		}
		c.Extraction.Workers = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate rejects settings no run can use.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SEC.UserAgent) == "" {
		return errors.New("sec.user_agent must not be empty")
	}
	if c.Extraction.Workers <= 0 {
		return fmt.Errorf("extraction.workers must be positive, got %d", c.Extraction.Workers)
	}
	if c.Retrieval.MaxFilings <= 0 {
		return fmt.Errorf("retrieval.max_filings must be positive, got %d", c.Retrieval.MaxFilings)
	}
	return nil
}

// FetchConfig derives the archive fetcher settings.
func (c Config) FetchConfig() ingest.FetchConfig {
	fc := ingest.DefaultFetchConfig(c.SEC.UserAgent)
	fc.Shared = c.SEC.SharedLimit
	fc.Retry.MaxRetries = c.SEC.MaxRetries
	for class, d := range c.SEC.MinDelay {
		fc.MinDelay[ingest.CallClass(class)] = d
	}
	return fc
}

// LLMProviderConfig derives the model backend settings.
func (c Config) LLMProviderConfig() llm.Config {
	return llm.Config{
		Backend:     c.LLM.Provider,
		Model:       c.LLM.Model,
		APIURL:      c.LLM.APIURL,
		APIKey:      c.LLM.APIKey,
		Timeout:     c.LLM.Timeout,
		Temperature: c.LLM.Temperature,
		JSONMode:    true,
	}
}
