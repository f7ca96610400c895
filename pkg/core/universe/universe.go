// Package universe builds the list of companies a retrieval run covers:
// tickers from the S&P 500 constituents page (or configuration) resolved to
// CIKs through SEC's company_tickers.json.
package universe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filing_signals/pkg/core/ingest"
	"filing_signals/pkg/core/logging"
	"filing_signals/pkg/core/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// SP500URL lists the current S&P 500 constituents.
const SP500URL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"

// Fetcher is the subset of ingest.Fetcher used by this package.
type Fetcher interface {
	Fetch(ctx context.Context, url string, class ingest.CallClass) ([]byte, error)
}

// ParseSP500 returns the first cell of every body row of table#constituents.
func ParseSP500(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse constituents page: %w", err)
	}
	table := doc.Find("table#constituents").First()
	if table.Length() == 0 {
		return nil, errors.New("constituents table not found")
	}

	var tickers []string
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return // header row
		}
		if t := strings.TrimSpace(cell.Text()); t != "" {
			tickers = append(tickers, t)
		}
	})
	return tickers, nil
}

// TickerMap maps upper-cased tickers to 10-digit CIKs.
type TickerMap map[string]string

type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// ParseTickerMap decodes the company_tickers.json shape
// {"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ...}.
func ParseTickerMap(body []byte) (TickerMap, error) {
	var raw map[string]tickerEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ticker JSON: %w", err)
	}
	m := make(TickerMap, len(raw))
	for _, e := range raw {
		t := strings.ToUpper(strings.TrimSpace(e.Ticker))
		if t == "" || e.CIK <= 0 {
			continue
		}
		m[t] = models.FormatCIK(e.CIK)
	}
	return m, nil
}

// Lookup resolves a ticker. Class-share tickers are tried in both the dotted
// form used by index providers and the dashed form SEC uses (BRK.B, BRK-B).
func (m TickerMap) Lookup(ticker string) (string, bool) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if cik, ok := m[t]; ok {
		return cik, true
	}
	if strings.Contains(t, ".") {
		cik, ok := m[strings.ReplaceAll(t, ".", "-")]
		return cik, ok
	}
	return "", false
}

// Resolve pairs every ticker with its CIK. Unknown tickers keep an empty
// CIK so the retrieval stage can log and skip them.
func (m TickerMap) Resolve(tickers []string) []models.CompanyRef {
	out := make([]models.CompanyRef, 0, len(tickers))
	for _, t := range tickers {
		cik, _ := m.Lookup(t)
		out = append(out, models.CompanyRef{Ticker: strings.TrimSpace(t), CIK: cik})
	}
	return out
}

// Source assembles the run universe.
type Source struct {
	Fetcher Fetcher

	// TickerFile is a local company_tickers.json, downloaded when missing.
	TickerFile string
	TickersURL string
	SP500URL   string

	// Override replaces the constituents page when non-empty.
	Override []string
	Log      logrus.FieldLogger
}

// Companies returns the resolved universe in constituent order.
func (s *Source) Companies(ctx context.Context) ([]models.CompanyRef, error) {
	m, err := s.TickerMap(ctx)
	if err != nil {
		return nil, err
	}
	tickers, err := s.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	return m.Resolve(tickers), nil
}

// Tickers returns the configured override or the S&P 500 constituents.
func (s *Source) Tickers(ctx context.Context) ([]string, error) {
	if len(s.Override) > 0 {
		return s.Override, nil
	}
	u := s.SP500URL
	if u == "" {
		u = SP500URL
	}
	body, err := s.Fetcher.Fetch(ctx, u, ingest.ClassReference)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch constituents page: %w", err)
	}
	return ParseSP500(bytes.NewReader(body))
}

// TickerMap reads TickerFile, downloading and saving it first when absent.
func (s *Source) TickerMap(ctx context.Context) (TickerMap, error) {
	if s.TickerFile != "" {
		body, err := os.ReadFile(s.TickerFile)
		if err == nil {
			return ParseTickerMap(body)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read ticker file: %w", err)
		}
	}

	u := s.TickersURL
	if u == "" {
		u = ingest.CompanyTickersURL
	}
	s.logger().WithField("url", u).Info("ticker file not found, downloading")
	body, err := s.Fetcher.Fetch(ctx, u, ingest.ClassReference)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch company tickers: %w", err)
	}
	m, err := ParseTickerMap(body)
	if err != nil {
		return nil, err
	}

	if s.TickerFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.TickerFile), 0755); err == nil {
			if err := os.WriteFile(s.TickerFile, body, 0644); err != nil {
				s.logger().WithError(err).Warn("failed to cache ticker file")
			}
		}
	}
	return m, nil
}

func (s *Source) logger() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logging.Discard()
}
