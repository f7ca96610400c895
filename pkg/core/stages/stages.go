// Package stages wires configuration into the retrieval and extraction
// orchestrators for the command line entry points.
package stages

import (
	"context"
	"fmt"
	"strings"

	"filing_signals/pkg/core/config"
	"filing_signals/pkg/core/edgar"
	"filing_signals/pkg/core/extract"
	"filing_signals/pkg/core/ingest"
	"filing_signals/pkg/core/llm"
	"filing_signals/pkg/core/logging"
	"filing_signals/pkg/core/metrics"
	"filing_signals/pkg/core/models"
	"filing_signals/pkg/core/pipeline"
	"filing_signals/pkg/core/prompt"
	"filing_signals/pkg/core/retrieval"
	"filing_signals/pkg/core/store"
	"filing_signals/pkg/core/universe"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Env is shared by both stages of one run.
type Env struct {
	Config  config.Config
	RunID   string
	Log     logrus.FieldLogger
	Metrics *metrics.Collector
}

func (e Env) logger() logrus.FieldLogger {
	return e.Log.WithField("run_id", e.RunID)
}

// Retrieve resolves the universe and runs the retrieval stage.
func Retrieve(ctx context.Context, env Env) (models.RunSummary, error) {
	cfg := env.Config
	log := env.logger()

	fetcher := ingest.NewFetcher(cfg.FetchConfig(),
		ingest.WithObserver(env.Metrics),
		ingest.WithLogger(log),
	)

	src := &universe.Source{
		Fetcher:    fetcher,
		TickerFile: cfg.Universe.TickerFile,
		Override:   cfg.Universe.Tickers,
		Log:        log,
	}
	companies, err := src.Companies(ctx)
	if err != nil {
		return models.RunSummary{RunID: env.RunID}, fmt.Errorf("failed to build company universe: %w", err)
	}
	log.WithField("companies", len(companies)).Info("universe resolved")

	base := cfg.SEC.ArchiveURL
	orch := retrieval.NewOrchestrator(
		edgar.NewLocator(fetcher, base, cfg.Retrieval.FormType, log),
		edgar.NewDocumentExtractor(fetcher, base, log),
		store.NewFilingStore(cfg.Retrieval.StorePath),
		retrieval.WithMaxFilings(cfg.Retrieval.MaxFilings),
		retrieval.WithFormType(cfg.Retrieval.FormType),
		retrieval.WithMetrics(env.Metrics),
		retrieval.WithLogger(log),
	)
	summary, err := orch.Run(ctx, companies)
	summary.RunID = env.RunID
	if err != nil {
		return summary, err
	}
	log.Infof("Saved filing data to %s", cfg.Retrieval.StorePath)
	return summary, nil
}

// Extract runs the extraction stage against the configured model.
func Extract(ctx context.Context, env Env) (models.RunSummary, error) {
	cfg := env.Config
	log := env.logger()

	provider, err := llm.NewProvider(ctx, cfg.LLMProviderConfig())
	if err != nil {
		return models.RunSummary{RunID: env.RunID}, fmt.Errorf("failed to create llm provider: %w", err)
	}

	pt, err := LoadPrompt(cfg.Extraction, log)
	if err != nil {
		return models.RunSummary{RunID: env.RunID}, err
	}
	extractor, err := extract.New(provider, extract.Options{
		Model:        cfg.LLMProviderConfig().ModelName(),
		Prompt:       pt,
		MaxTextChars: cfg.Extraction.MaxTextChars,
		Log:          log,
	})
	if err != nil {
		return models.RunSummary{RunID: env.RunID}, err
	}

	orch := pipeline.NewOrchestrator(
		store.NewFilingStore(cfg.Retrieval.StorePath),
		extractor,
		OpenSink(cfg, env.RunID, log),
		pipeline.Config{Workers: cfg.Extraction.Workers, RunID: env.RunID, OutputPath: cfg.Extraction.OutputPath},
		env.Metrics,
		env.Log,
	)
	return orch.Run(ctx)
}

// LoadPrompt builds the prompt registry from the built-ins, then
// extraction.prompt_dir, then extraction.prompt_file, and returns the prompt
// named by extraction.prompt_id.
func LoadPrompt(cfg config.ExtractionConfig, log logrus.FieldLogger) (*prompt.PromptTemplate, error) {
	reg := prompt.NewRegistry()
	if cfg.PromptDir != "" {
		if err := reg.LoadFromDirectory(cfg.PromptDir); err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
	}
	if cfg.PromptFile != "" {
		if _, err := reg.LoadFile(cfg.PromptFile); err != nil {
			return nil, err
		}
	}

	id := cfg.PromptID
	if id == "" {
		id = prompt.ExtractionPromptID
	}
	pt, err := reg.GetPrompt(id)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(reg.ListPrompts(), ", "))
	}
	log.WithFields(logrus.Fields{"prompt_id": pt.ID, "prompts": reg.Count()}).Debug("prompt selected")
	return pt, nil
}

// OpenSink returns an opener for the CSV output plus, when a database URL is
// configured, a Postgres mirror. A mirror that cannot be reached is logged
// and left out.
func OpenSink(cfg config.Config, runID string, log logrus.FieldLogger) pipeline.SinkOpener {
	return func(ctx context.Context) (store.Sink, error) {
		csvSink, err := store.CreateCSV(cfg.Extraction.OutputPath)
		if err != nil {
			return nil, err
		}
		if cfg.Database.URL == "" {
			return csvSink, nil
		}

		if err := store.InitDB(ctx, cfg.Database.URL); err != nil {
			log.WithError(err).Warn("database unavailable, writing CSV only")
			return csvSink, nil
		}
		pg := store.NewPostgresSink(store.GetPool(), cfg.Database.Table, runID)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.WithError(err).Warn("failed to prepare results table, writing CSV only")
			return csvSink, nil
		}
		return &store.MultiSink{Primary: csvSink, Mirrors: []store.Sink{pg}, Log: log}, nil
	}
}

// Setup loads configuration and builds the logger, run id and metrics for
// one process. Metrics are served until ctx is done when metrics.addr is set.
func Setup(ctx context.Context) (Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return Env{}, err
	}
	log := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	env := Env{
		Config:  cfg,
		RunID:   uuid.NewString(),
		Log:     log,
		Metrics: metrics.New(),
	}
	if cfg.Metrics.Addr != "" {
		env.Metrics.Serve(ctx, cfg.Metrics.Addr, log)
	}
	return env, nil
}
