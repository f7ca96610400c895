// Package pipeline runs the extraction stage: it loads the intermediate
// filing store, fans records out to a bounded pool of extractors and writes
// accepted results to the output sink as they complete.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"filing_signals/pkg/core/logging"
	"filing_signals/pkg/core/metrics"
	"filing_signals/pkg/core/models"
	"filing_signals/pkg/core/store"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the size of the extraction pool.
const DefaultWorkers = 5

// RecordSource loads the intermediate store.
type RecordSource interface {
	Load() ([]models.FilingRecord, error)
}

// FactExtractor turns one record into an outcome. It must not panic, but the
// orchestrator recovers if it does.
type FactExtractor interface {
	Extract(ctx context.Context, rec models.FilingRecord) models.Outcome
}

// SinkOpener creates the output sink. It is called only after the store has
// loaded, so a missing store never truncates existing output.
type SinkOpener func(ctx context.Context) (store.Sink, error)

// Config holds the orchestrator settings.
type Config struct {
	Workers    int
	RunID      string
	OutputPath string // for log lines only
}

// Orchestrator manages the extraction stage end to end.
type Orchestrator struct {
	source    RecordSource
	extractor FactExtractor
	openSink  SinkOpener
	cfg       Config
	metrics   *metrics.Collector
	log       logrus.FieldLogger
}

// NewOrchestrator creates an orchestrator. m and log may be nil.
func NewOrchestrator(source RecordSource, extractor FactExtractor, openSink SinkOpener, cfg Config, m *metrics.Collector, log logrus.FieldLogger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if log == nil {
		log = logging.Discard()
	}
	fields := logrus.Fields{"component": "extraction"}
	if cfg.RunID != "" {
		fields["run_id"] = cfg.RunID
	}
	return &Orchestrator{
		source:    source,
		extractor: extractor,
		openSink:  openSink,
		cfg:       cfg,
		metrics:   m,
		log:       log.WithFields(fields),
	}
}

// Run executes the stage. The only fatal conditions are a missing or
// unreadable store and a sink that cannot be opened or written; individual
// record failures are counted and logged.
func (o *Orchestrator) Run(ctx context.Context) (models.RunSummary, error) {
	start := time.Now()
	summary := models.RunSummary{RunID: o.cfg.RunID, Discarded: map[models.FailureKind]int{}}

	// Step 1: Load records
	records, err := o.source.Load()
	if err != nil {
		if errors.Is(err, store.ErrStoreMissing) {
			o.log.WithError(err).Error("filing store not found; run retrieval first")
		}
		return summary, err
	}
	summary.Records = len(records)

	// Step 2: Open output
	sink, err := o.openSink(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to open output: %w", err)
	}

	// Step 3: Bounded fan-out
	var (
		mu       sync.Mutex
		writeErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, rec := range records {
		if !rec.HasText() {
			o.log.WithField("ticker", rec.Ticker).Info("Skipped empty or incomplete data for " + rec.Ticker)
			mu.Lock()
			summary.Discard(models.FailureSchemaIncomplete)
			mu.Unlock()
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			began := time.Now()
			out := o.extractOne(gctx, rec)
			o.metrics.ObserveExtraction(out.Failure, time.Since(began))
			log := o.log.WithField("ticker", rec.Ticker)

			if !out.OK() {
				log.WithError(out.Err).WithField("reason", string(out.Failure)).
					Info("Skipped empty or incomplete data for " + rec.Ticker)
				mu.Lock()
				summary.Discard(out.Failure)
				mu.Unlock()
				return nil
			}

			if err := sink.Write(gctx, *out.Result); err != nil {
				mu.Lock()
				if writeErr == nil {
					writeErr = err
				}
				mu.Unlock()
				return err
			}
			log.WithField("product", out.Result.NewProduct).Info("Extracted entities for " + rec.Ticker)
			mu.Lock()
			summary.Accepted++
			mu.Unlock()
			return nil
		})
	}

	groupErr := g.Wait()
	closeErr := sink.Close()

	switch {
	case writeErr != nil:
		return summary, fmt.Errorf("failed to write output: %w", writeErr)
	case groupErr != nil:
		return summary, groupErr
	case ctx.Err() != nil:
		return summary, ctx.Err()
	case closeErr != nil:
		return summary, fmt.Errorf("failed to close output: %w", closeErr)
	}

	o.log.WithFields(logrus.Fields{
		"records":   summary.Records,
		"accepted":  summary.Accepted,
		"discarded": summary.Discarded,
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("Saved extracted data to " + o.cfg.OutputPath)
	return summary, nil
}

// extractOne isolates a single invocation so a panic only loses its record.
func (o *Orchestrator) extractOne(ctx context.Context, rec models.FilingRecord) (out models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("ticker", rec.Ticker).Errorf("extraction panicked: %v", r)
			out = models.Outcome{Ticker: rec.Ticker, Failure: models.FailureParse, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return o.extractor.Extract(ctx, rec)
}
