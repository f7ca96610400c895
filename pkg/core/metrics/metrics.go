// Package metrics exposes Prometheus counters for both pipeline stages.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"filing_signals/pkg/core/ingest"
	"filing_signals/pkg/core/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "filing_signals"

// Collector holds the pipeline metrics on a private registry. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Fetches            *prometheus.CounterVec
	CompaniesSkipped   *prometheus.CounterVec
	FilingsRetrieved   prometheus.Counter
	Extractions        *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram
}

// New creates and registers every collector.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Archive requests by call class and outcome",
		},
		[]string{"class", "outcome"},
	)
	c.CompaniesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "companies_skipped_total",
			Help:      "Companies skipped during retrieval by reason",
		},
		[]string{"reason"},
	)
	c.FilingsRetrieved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filings_retrieved_total",
			Help:      "Filings whose text was retrieved and stored",
		},
	)
	c.Extractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction outcomes by result",
		},
		[]string{"result"},
	)
	c.ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Model call plus parsing time per record",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	c.registry.MustRegister(c.Fetches, c.CompaniesSkipped, c.FilingsRetrieved, c.Extractions, c.ExtractionDuration)
	return c
}

// ObserveFetch implements ingest.Observer.
func (c *Collector) ObserveFetch(class ingest.CallClass, outcome string) {
	if c == nil {
		return
	}
	c.Fetches.WithLabelValues(string(class), outcome).Inc()
}

func (c *Collector) CompanySkipped(reason string) {
	if c == nil {
		return
	}
	c.CompaniesSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) FilingRetrieved() {
	if c == nil {
		return
	}
	c.FilingsRetrieved.Inc()
}

// ObserveExtraction records one outcome; accepted results are labelled "accepted".
func (c *Collector) ObserveExtraction(kind models.FailureKind, d time.Duration) {
	if c == nil {
		return
	}
	result := string(kind)
	if kind == models.FailureNone {
		result = "accepted"
	}
	c.Extractions.WithLabelValues(result).Inc()
	c.ExtractionDuration.Observe(d.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
}
