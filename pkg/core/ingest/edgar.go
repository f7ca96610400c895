// Package ingest provides the rate-limited HTTP fetcher used for every call
// against the SEC EDGAR archive.
// Access policy: https://www.sec.gov/os/accessing-edgar-data
package ingest

import (
	"net/http"
	"strings"
	"time"
)

const (
	// SEC EDGAR endpoints
	ArchiveBaseURL    = "https://www.sec.gov"
	CompanyTickersURL = "https://www.sec.gov/files/company_tickers.json"

	// DefaultUserAgent must be replaced with a real name and contact email;
	// EDGAR throttles or blocks anonymous clients.
	DefaultUserAgent = "FilingSignals admin@example.com"

	defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// CallClass groups requests that share a pacing delay and timeout.
type CallClass string

const (
	ClassFeed      CallClass = "feed"       // browse-edgar atom feed
	ClassIndexPage CallClass = "index_page" // filing -index.htm page
	ClassDocument  CallClass = "document"   // primary filing document
	ClassReference CallClass = "reference"  // ticker map, universe page
)

// Identity is the header set the archive requires on every request.
type Identity struct {
	UserAgent string
	Accept    string
}

// Headers renders the identity as request headers. Accept-Encoding is left
// to the transport, which requests gzip and decodes it transparently.
func (id Identity) Headers() http.Header {
	h := http.Header{}
	ua := strings.TrimSpace(id.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	h.Set("User-Agent", ua)
	accept := id.Accept
	if accept == "" {
		accept = defaultAccept
	}
	h.Set("Accept", accept)
	h.Set("Connection", "keep-alive")
	return h
}

// RetryConfig configures retries on 429, 5xx and transport errors.
// MaxRetries of 0 disables retrying.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// FetchConfig is everything a Fetcher needs; pass a config with zero delays
// in tests.
type FetchConfig struct {
	Identity Identity
	MinDelay map[CallClass]time.Duration
	Timeout  map[CallClass]time.Duration
	Retry    RetryConfig
	// Shared selects a token-bucket pacer that is safe to use from
	// concurrent callers instead of the post-request delay.
	Shared bool
	// MaxBodyBytes caps a single response body. 0 means 64 MiB.
	MaxBodyBytes int64
}

// DefaultFetchConfig mirrors EDGAR-friendly pacing: 2s after feed and
// document calls, 5s after filing index pages.
func DefaultFetchConfig(userAgent string) FetchConfig {
	return FetchConfig{
		Identity: Identity{UserAgent: userAgent},
		MinDelay: map[CallClass]time.Duration{
			ClassFeed:      2 * time.Second,
			ClassIndexPage: 5 * time.Second,
			ClassDocument:  2 * time.Second,
			ClassReference: time.Second,
		},
		Timeout: map[CallClass]time.Duration{
			ClassFeed:      60 * time.Second,
			ClassIndexPage: 30 * time.Second,
			ClassDocument:  60 * time.Second,
			ClassReference: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 2,
			BaseDelay:  time.Second,
			MaxDelay:   10 * time.Second,
		},
	}
}

func (c FetchConfig) timeout(class CallClass) time.Duration {
	if d, ok := c.Timeout[class]; ok && d > 0 {
		return d
	}
	return 60 * time.Second
}

func (c FetchConfig) maxBody() int64 {
	if c.MaxBodyBytes > 0 {
		return c.MaxBodyBytes
	}
	return 64 << 20
}
