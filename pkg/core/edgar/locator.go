// Package edgar locates a company's recent filings on the SEC EDGAR archive
// and turns the primary filing document into plain text.
//
// This package uses the following external libraries:
//   - github.com/PuerkitoBio/goquery: filing index traversal and text extraction
//   - golang.org/x/net/html: node walk for visible text
package edgar

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"filing_signals/pkg/core/ingest"
	"filing_signals/pkg/core/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// Fetcher is the subset of ingest.Fetcher used by this package.
type Fetcher interface {
	Fetch(ctx context.Context, url string, class ingest.CallClass) ([]byte, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, url string, class ingest.CallClass) ([]byte, error)

func (f FetchFunc) Fetch(ctx context.Context, url string, class ingest.CallClass) ([]byte, error) {
	return f(ctx, url, class)
}

// DefaultMaxFilings is the number of feed entries requested per company.
const DefaultMaxFilings = 20

// DefaultFormType is the form requested when none is configured.
const DefaultFormType = "8-K"

// atomFeed is the browse-edgar output=atom document. Only the fields the
// locator needs are decoded.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Link struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Updated string `xml:"updated"`
}

// Locator lists the most recent filings of one form type for a CIK.
type Locator struct {
	fetcher  Fetcher
	baseURL  string
	formType string
	log      logrus.FieldLogger
}

// NewLocator creates a locator for formType (e.g. "8-K") against baseURL,
// normally ingest.ArchiveBaseURL.
func NewLocator(fetcher Fetcher, baseURL, formType string, log logrus.FieldLogger) *Locator {
	if formType == "" {
		formType = DefaultFormType
	}
	return &Locator{
		fetcher:  fetcher,
		baseURL:  strings.TrimRight(baseURL, "/"),
		formType: formType,
		log:      log.WithField("component", "locator"),
	}
}

// FeedURL builds the browse-edgar atom feed URL for cik, padded to ten
// digits.
func (l *Locator) FeedURL(cik string, maxCount int) string {
	q := url.Values{}
	q.Set("action", "getcompany")
	q.Set("CIK", models.PadCIK(cik))
	q.Set("type", l.formType)
	q.Set("count", fmt.Sprint(maxCount))
	q.Set("output", "atom")
	return l.baseURL + "/cgi-bin/browse-edgar?" + q.Encode()
}

// Locate returns up to maxCount filing references, most recent first.
// It never fails: fetch or parse problems are logged and yield nil.
func (l *Locator) Locate(ctx context.Context, cik string, maxCount int) []models.FilingRef {
	if maxCount <= 0 {
		maxCount = DefaultMaxFilings
	}
	log := l.log.WithField("cik", cik)

	body, err := l.fetcher.Fetch(ctx, l.FeedURL(cik, maxCount), ingest.ClassFeed)
	if err != nil {
		log.WithError(err).Warn("failed to fetch filing feed")
		return nil
	}

	refs, err := ParseFeed(body, maxCount)
	if err != nil {
		log.WithError(err).Warn("failed to parse filing feed")
		return nil
	}
	return refs
}

// ParseFeed decodes an atom feed into filing references in document order.
// Entries without a link are skipped.
func ParseFeed(body []byte, maxCount int) ([]models.FilingRef, error) {
	// EDGAR declares ISO-8859-1 on its feeds.
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel

	var feed atomFeed
	if err := dec.Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode atom feed: %w", err)
	}

	var refs []models.FilingRef
	for _, e := range feed.Entries {
		if maxCount > 0 && len(refs) >= maxCount {
			break
		}
		href := strings.TrimSpace(e.Link.Href)
		if href == "" {
			continue
		}
		refs = append(refs, models.FilingRef{
			DocumentURL: href,
			UpdatedAt:   strings.TrimSpace(e.Updated),
		})
	}
	return refs, nil
}
