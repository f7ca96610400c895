// Package retrieval runs the first stage: for every company it locates
// recent filings, extracts their text and persists the non-empty records in
// a single write at the end of the run.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"filing_signals/pkg/core/edgar"
	"filing_signals/pkg/core/logging"
	"filing_signals/pkg/core/metrics"
	"filing_signals/pkg/core/models"

	"github.com/sirupsen/logrus"
)

// Locator lists filing references for a CIK.
type Locator interface {
	Locate(ctx context.Context, cik string, maxCount int) []models.FilingRef
}

// DocumentExtractor returns the text of one filing, or "" on any failure.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, filingURL, ticker string) string
}

// Store persists the accumulated records.
type Store interface {
	Save(records []models.FilingRecord) error
}

// Orchestrator drives retrieval sequentially, one company and one filing at
// a time, so the fetcher's pacing bounds the request rate.
type Orchestrator struct {
	locator    Locator
	extractor  DocumentExtractor
	store      Store
	formType   string
	maxFilings int
	metrics    *metrics.Collector
	log        logrus.FieldLogger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMaxFilings bounds the filings fetched per company.
func WithMaxFilings(n int) Option {
	return func(o *Orchestrator) { o.maxFilings = n }
}

// WithFormType names the form the locator is configured for. It only
// labels log lines.
func WithFormType(form string) Option {
	return func(o *Orchestrator) { o.formType = form }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// NewOrchestrator wires the stage.
func NewOrchestrator(locator Locator, extractor DocumentExtractor, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		locator:    locator,
		extractor:  extractor,
		store:      store,
		formType:   edgar.DefaultFormType,
		maxFilings: edgar.DefaultMaxFilings,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.Discard()
	}
	o.log = o.log.WithField("component", "retrieval")
	return o
}

// Run processes companies in order and writes the store once. On context
// cancellation nothing is written and the context error is returned.
func (o *Orchestrator) Run(ctx context.Context, companies []models.CompanyRef) (models.RunSummary, error) {
	start := time.Now()
	summary := models.RunSummary{}
	var records []models.FilingRecord

	for _, company := range companies {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Companies++
		log := o.log.WithFields(logrus.Fields{"ticker": company.Ticker, "cik": company.CIK})

		// Step 1: Identifier resolution
		if company.CIK == "" {
			log.Warn("no CIK for ticker, skipping")
			summary.CompaniesSkipped++
			o.metrics.CompanySkipped("no_cik")
			continue
		}

		// Step 2: Locate filings
		refs := o.locator.Locate(ctx, company.CIK, o.maxFilings)
		if len(refs) == 0 {
			log.Warn("no filings fetched for CIK")
			summary.CompaniesSkipped++
			o.metrics.CompanySkipped("no_filings")
			continue
		}

		// Step 3: Extract text, one filing at a time
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			summary.Filings++

			text := o.extractor.ExtractText(ctx, ref.DocumentURL, company.Ticker)
			rec := models.FilingRecord{Ticker: company.Ticker, FilingTime: ref.UpdatedAt, Text: text}
			if !rec.HasText() {
				summary.FilingsEmpty++
				log.WithField("url", ref.DocumentURL).Debug("no text extracted, skipping filing")
				continue
			}
			records = append(records, rec)
			summary.Records++
			o.metrics.FilingRetrieved()
			log.WithField("filing_time", ref.UpdatedAt).Infof("Fetched %s filing for %s", o.formType, company.Ticker)
		}
	}

	// Step 4: Persist
	if err := o.store.Save(records); err != nil {
		return summary, fmt.Errorf("failed to save filing data: %w", err)
	}
	o.log.WithFields(logrus.Fields{
		"companies": summary.Companies,
		"skipped":   summary.CompaniesSkipped,
		"filings":   summary.Filings,
		"empty":     summary.FilingsEmpty,
		"records":   summary.Records,
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("Saved filing data")
	return summary, nil
}
