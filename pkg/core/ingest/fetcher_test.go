package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() FetchConfig {
	return FetchConfig{
		Identity: Identity{UserAgent: "Test Agent test@example.com"},
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *recordingObserver) ObserveFetch(class CallClass, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[string(class)+"/"+outcome]++
}

func TestFetchSendsIdentityHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := NewFetcher(testConfig())
	body, err := f.Fetch(context.Background(), srv.URL, ClassDocument)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Errorf("body = %q", body)
	}
	if gotUA != "Test Agent test@example.com" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAccept == "" {
		t.Errorf("Accept header missing")
	}
}

func TestFetchNon2xxReturnsRetrievalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	f := NewFetcher(testConfig(), WithObserver(obs))
	_, err := f.Fetch(context.Background(), srv.URL, ClassIndexPage)

	var re *RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RetrievalError, got %T %v", err, err)
	}
	if re.StatusCode != http.StatusNotFound || re.Class != ClassIndexPage {
		t.Errorf("unexpected error fields: %+v", re)
	}
	if re.Retryable() {
		t.Errorf("404 must not be retryable")
	}
	if obs.counts["index_page/error"] != 1 {
		t.Errorf("observer counts = %v", obs.counts)
	}
}

func TestFetchTransportErrorReturnsRetrievalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := NewFetcher(testConfig())
	_, err := f.Fetch(context.Background(), url, ClassFeed)
	var re *RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RetrievalError, got %v", err)
	}
	if re.StatusCode != 0 || re.Cause == nil {
		t.Errorf("unexpected error fields: %+v", re)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Timeout = map[CallClass]time.Duration{ClassDocument: 50 * time.Millisecond}
	f := NewFetcher(cfg)

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL, ClassDocument)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not applied, took %v", time.Since(start))
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Retry = RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	f := NewFetcher(cfg)

	body, err := f.Fetch(context.Background(), srv.URL, ClassFeed)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if string(body) != "finally" {
		t.Errorf("body = %q", body)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchRetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Retry = RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	f := NewFetcher(cfg)

	_, err := f.Fetch(context.Background(), srv.URL, ClassFeed)
	var re *RetrievalError
	if !errors.As(err, &re) || re.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 RetrievalError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestFetchNoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Retry = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	f := NewFetcher(cfg)

	if _, err := f.Fetch(context.Background(), srv.URL, ClassFeed); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

type pacerFunc struct {
	BeforeFunc func(ctx context.Context, class CallClass) error
	AfterFunc  func(ctx context.Context, class CallClass) error
}

func (p pacerFunc) Before(ctx context.Context, class CallClass) error {
	if p.BeforeFunc == nil {
		return nil
	}
	return p.BeforeFunc(ctx, class)
}

func (p pacerFunc) After(ctx context.Context, class CallClass) error {
	if p.AfterFunc == nil {
		return nil
	}
	return p.AfterFunc(ctx, class)
}

func TestFetchPacesOnlyAfterSuccess(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var before, after int
	p := pacerFunc{
		BeforeFunc: func(context.Context, CallClass) error { before++; return nil },
		AfterFunc:  func(context.Context, CallClass) error { after++; return nil },
	}
	f := NewFetcher(testConfig())
	f.pacer = p

	f.Fetch(context.Background(), srv.URL, ClassDocument)
	fail = true
	f.Fetch(context.Background(), srv.URL, ClassDocument)

	if before != 2 || after != 1 {
		t.Errorf("before=%d after=%d, want 2 and 1", before, after)
	}
}

func TestFetchCancelledBeforeRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(testConfig())
	_, err := f.Fetch(ctx, srv.URL, ClassFeed)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("request must not be sent after cancellation")
	}
}

func TestDefaultFetchConfig(t *testing.T) {
	cfg := DefaultFetchConfig("")
	if cfg.MinDelay[ClassIndexPage] != 5*time.Second {
		t.Errorf("index page delay = %v", cfg.MinDelay[ClassIndexPage])
	}
	if cfg.Timeout[ClassIndexPage] != 30*time.Second {
		t.Errorf("index page timeout = %v", cfg.Timeout[ClassIndexPage])
	}
	if cfg.MinDelay[ClassFeed] != 2*time.Second || cfg.MinDelay[ClassDocument] != 2*time.Second {
		t.Errorf("feed/document delays = %v", cfg.MinDelay)
	}
	if ua := cfg.Identity.Headers().Get("User-Agent"); ua != DefaultUserAgent {
		t.Errorf("fallback user agent = %q", ua)
	}
}
