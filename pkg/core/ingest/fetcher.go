package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"filing_signals/pkg/core/logging"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
)

// RetrievalError is returned for any transport error, timeout or non-2xx
// status. StatusCode is 0 when no response was received.
type RetrievalError struct {
	URL        string
	Class      CallClass
	StatusCode int
	Cause      error
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (%s): status %d", e.URL, e.Class, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Class, e.Cause)
}

func (e *RetrievalError) Unwrap() error { return e.Cause }

// Retryable reports whether another attempt could succeed.
func (e *RetrievalError) Retryable() bool {
	if e.StatusCode == 0 {
		return !errors.Is(e.Cause, context.Canceled)
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Observer receives one notification per Fetch call.
type Observer interface {
	ObserveFetch(class CallClass, outcome string)
}

// Fetch outcomes reported to the Observer.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Fetcher performs identity-stamped, paced GETs against the archive.
type Fetcher struct {
	cfg      FetchConfig
	client   *http.Client
	pacer    Pacer
	observer Observer
	log      logrus.FieldLogger
	retry    retrypolicy.RetryPolicy[[]byte]
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

func WithObserver(o Observer) Option {
	return func(f *Fetcher) { f.observer = o }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Fetcher) { f.log = l }
}

// NewFetcher creates a Fetcher. With cfg.Shared the pacer is a LimiterPacer,
// otherwise a DelayPacer.
func NewFetcher(cfg FetchConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{},
	}
	if cfg.Shared {
		f.pacer = NewLimiterPacer(cfg.MinDelay)
	} else {
		f.pacer = NewDelayPacer(cfg.MinDelay)
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logging.Discard()
	}
	if cfg.Retry.MaxRetries > 0 {
		base := cfg.Retry.BaseDelay
		if base <= 0 {
			base = time.Millisecond
		}
		maxDelay := cfg.Retry.MaxDelay
		if maxDelay < base {
			maxDelay = base
		}
		f.retry = retrypolicy.NewBuilder[[]byte]().
			WithBackoff(base, maxDelay).
			WithMaxRetries(cfg.Retry.MaxRetries).
			WithJitterFactor(0.1).
			HandleIf(func(_ []byte, err error) bool {
				var re *RetrievalError
				return errors.As(err, &re) && re.Retryable()
			}).
			Build()
	}
	return f
}

// Fetch GETs url and returns the decoded body. The pacer runs before the
// request and, on success only, after it.
func (f *Fetcher) Fetch(ctx context.Context, url string, class CallClass) ([]byte, error) {
	if err := f.pacer.Before(ctx, class); err != nil {
		return nil, &RetrievalError{URL: url, Class: class, Cause: err}
	}

	body, err := f.fetchWithRetry(ctx, url, class)
	if err != nil {
		f.observe(class, OutcomeError)
		f.log.WithFields(logrus.Fields{"url": url, "class": class}).WithError(err).Debug("fetch failed")
		return nil, err
	}
	f.observe(class, OutcomeOK)

	// A cancelled wait surfaces on the caller's next call.
	_ = f.pacer.After(ctx, class)
	return body, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, url string, class CallClass) ([]byte, error) {
	if f.retry == nil {
		return f.do(ctx, url, class)
	}

	var lastErr error
	body, err := failsafe.With(f.retry).WithContext(ctx).Get(func() ([]byte, error) {
		b, err := f.do(ctx, url, class)
		lastErr = err
		return b, err
	})
	if err == nil {
		return body, nil
	}
	var re *RetrievalError
	if errors.As(lastErr, &re) {
		return nil, re
	}
	return nil, &RetrievalError{URL: url, Class: class, Cause: err}
}

func (f *Fetcher) do(ctx context.Context, url string, class CallClass) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.timeout(class))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RetrievalError{URL: url, Class: class, Cause: err}
	}
	req.Header = f.cfg.Identity.Headers()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &RetrievalError{URL: url, Class: class, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &RetrievalError{
			URL:        url,
			Class:      class,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.maxBody()))
	if err != nil {
		return nil, &RetrievalError{URL: url, Class: class, Cause: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

func (f *Fetcher) observe(class CallClass, outcome string) {
	if f.observer != nil {
		f.observer.ObserveFetch(class, outcome)
	}
}
