package edgar

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"filing_signals/pkg/core/ingest"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// DocumentExtractor resolves a filing index page to its primary document and
// returns the document's visible text.
type DocumentExtractor struct {
	fetcher Fetcher
	baseURL string
	log     logrus.FieldLogger
}

// NewDocumentExtractor creates an extractor that rebuilds document URLs
// under baseURL, normally ingest.ArchiveBaseURL.
func NewDocumentExtractor(fetcher Fetcher, baseURL string, log logrus.FieldLogger) *DocumentExtractor {
	return &DocumentExtractor{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.WithField("component", "document"),
	}
}

// ExtractText fetches the index page at filingURL, picks the primary
// document for ticker and returns its plain text. Every failure is logged
// and yields "".
func (d *DocumentExtractor) ExtractText(ctx context.Context, filingURL, ticker string) string {
	log := d.log.WithFields(logrus.Fields{"ticker": ticker, "url": filingURL})

	// Step 1: Index page
	page, err := d.fetcher.Fetch(ctx, filingURL, ingest.ClassIndexPage)
	if err != nil {
		log.WithError(err).Warn("failed to fetch filing index")
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		log.WithError(err).Warn("failed to parse filing index")
		return ""
	}

	// Step 2: Candidate selection
	href, ok := SelectDocument(doc, ticker)
	if !ok {
		log.Debug("no primary document candidate on index page")
		return ""
	}
	docURL, err := ArchiveURL(d.baseURL, href)
	if err != nil {
		log.WithError(err).Warn("malformed document link")
		return ""
	}

	// Step 3: Primary document
	body, err := d.fetcher.Fetch(ctx, docURL, ingest.ClassDocument)
	if err != nil {
		log.WithError(err).WithField("document", docURL).Warn("failed to fetch filing document")
		return ""
	}
	text, err := PlainText(body)
	if err != nil {
		log.WithError(err).WithField("document", docURL).Warn("failed to parse filing document")
		return ""
	}
	return text
}

// SelectDocument returns the first link inside a table cell, in document
// order, that ends in ".htm" and mentions the ticker or "8k".
func SelectDocument(doc *goquery.Document, ticker string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(ticker))

	var found string
	doc.Find("td a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if isCandidate(href, needle) {
			found = href
			return false
		}
		return true
	})
	return found, found != ""
}

func isCandidate(href, ticker string) bool {
	if !strings.HasSuffix(href, ".htm") {
		return false
	}
	lower := strings.ToLower(href)
	return (ticker != "" && strings.Contains(lower, ticker)) || strings.Contains(lower, "8k")
}

// ArchiveURL rebuilds an absolute archive URL from the last three path
// segments of href (cik, accession folder, file name). Inline-viewer links
// such as "/ix?doc=/Archives/..." resolve to the same document.
func ArchiveURL(baseURL, href string) (string, error) {
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
		if doc := u.Query().Get("doc"); doc != "" {
			path = doc
		}
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return "", fmt.Errorf("document link %q has fewer than three path segments", href)
	}
	n := len(parts)
	for _, p := range parts[n-3:] {
		if p == "" {
			return "", fmt.Errorf("document link %q has an empty path segment", href)
		}
	}
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		strings.TrimRight(baseURL, "/"), parts[n-3], parts[n-2], parts[n-1]), nil
}
