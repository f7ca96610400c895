package universe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"filing_signals/pkg/core/ingest"
)

type fetchFunc func(ctx context.Context, url string, class ingest.CallClass) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string, class ingest.CallClass) ([]byte, error) {
	return f(ctx, url, class)
}

const constituents = `<html><body>
<table class="wikitable" id="other"><tr><td>NOPE</td></tr></table>
<table class="wikitable sortable" id="constituents">
<tbody>
<tr><th>Symbol</th><th>Security</th></tr>
<tr><td><a href="#">MMM</a>
</td><td>3M</td></tr>
<tr><td>AAPL</td><td>Apple Inc.</td></tr>
<tr><td>BRK.B</td><td>Berkshire Hathaway</td></tr>
</tbody>
</table></body></html>`

const tickersJSON = `{
 "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
 "1": {"cik_str": 66740, "ticker": "mmm", "title": "3M CO"},
 "2": {"cik_str": 1067983, "ticker": "BRK-B", "title": "BERKSHIRE HATHAWAY INC"}
}`

func TestParseSP500(t *testing.T) {
	got, err := ParseSP500(strings.NewReader(constituents))
	if err != nil {
		t.Fatalf("ParseSP500: %v", err)
	}
	want := []string{"MMM", "AAPL", "BRK.B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := ParseSP500(strings.NewReader("<html><body>nothing</body></html>")); err == nil {
		t.Error("expected error when the table is missing")
	}
}

func TestTickerMap(t *testing.T) {
	m, err := ParseTickerMap([]byte(tickersJSON))
	if err != nil {
		t.Fatalf("ParseTickerMap: %v", err)
	}
	if m["MMM"] != "0000066740" {
		t.Errorf("MMM = %q", m["MMM"])
	}
	if cik, ok := m.Lookup("brk.b"); !ok || cik != "0001067983" {
		t.Errorf("Lookup(brk.b) = %q, %v", cik, ok)
	}

	refs := m.Resolve([]string{"AAPL", "ACME"})
	if refs[0].CIK != "0000320193" || refs[1].CIK != "" || refs[1].Ticker != "ACME" {
		t.Errorf("Resolve = %+v", refs)
	}
}

func TestSourceDownloadsMissingTickerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "company_tickers.json")
	var fetched []string
	src := &Source{
		TickerFile: path,
		Fetcher: fetchFunc(func(_ context.Context, url string, class ingest.CallClass) ([]byte, error) {
			fetched = append(fetched, url)
			if class != ingest.ClassReference {
				t.Errorf("class = %q", class)
			}
			if url == ingest.CompanyTickersURL {
				return []byte(tickersJSON), nil
			}
			return []byte(constituents), nil
		}),
	}

	refs, err := src.Companies(context.Background())
	if err != nil {
		t.Fatalf("Companies: %v", err)
	}
	if len(refs) != 3 || refs[0].Ticker != "MMM" || refs[2].CIK != "0001067983" {
		t.Errorf("refs = %+v", refs)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("ticker file not cached: %v", err)
	}

	// Second run reads the cached file.
	fetched = nil
	src.Override = []string{"AAPL"}
	refs, err = src.Companies(context.Background())
	if err != nil {
		t.Fatalf("Companies: %v", err)
	}
	if len(fetched) != 0 {
		t.Errorf("unexpected fetches: %v", fetched)
	}
	if len(refs) != 1 || refs[0].CIK != "0000320193" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestSourcePropagatesFetchErrors(t *testing.T) {
	src := &Source{
		Fetcher: fetchFunc(func(context.Context, string, ingest.CallClass) ([]byte, error) {
			return nil, errors.New("offline")
		}),
	}
	if _, err := src.Companies(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
