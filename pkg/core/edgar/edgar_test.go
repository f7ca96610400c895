package edgar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"filing_signals/pkg/core/ingest"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

const sampleFeed = `<?xml version="1.0" encoding="ISO-8859-1" ?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ACME CORP (0000000001)</title>
  <entry>
    <category label="form type" scheme="https://www.sec.gov/" term="8-K"/>
    <link href="https://www.sec.gov/Archives/edgar/data/1/000000000124000002/0000000001-24-000002-index.htm" rel="alternate" type="text/html"/>
    <updated>2024-03-01T16:05:00-05:00</updated>
  </entry>
  <entry>
    <link rel="alternate" type="text/html"/>
    <updated>2024-02-01T09:00:00-05:00</updated>
  </entry>
  <entry>
    <link href="https://www.sec.gov/Archives/edgar/data/1/000000000124000001/0000000001-24-000001-index.htm"/>
    <updated>2024-01-15T08:30:00-05:00</updated>
  </entry>
</feed>`

func TestParseFeed(t *testing.T) {
	refs, err := ParseFeed([]byte(sampleFeed), 20)
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2 (entry without href skipped)", len(refs))
	}
	if refs[0].UpdatedAt != "2024-03-01T16:05:00-05:00" {
		t.Errorf("first ref updated = %q", refs[0].UpdatedAt)
	}
	if !strings.HasSuffix(refs[1].DocumentURL, "0000000001-24-000001-index.htm") {
		t.Errorf("order not preserved: %+v", refs)
	}

	one, _ := ParseFeed([]byte(sampleFeed), 1)
	if len(one) != 1 {
		t.Errorf("maxCount not honoured: %d refs", len(one))
	}
}

func TestLocatorBuildsFeedURLAndSwallowsErrors(t *testing.T) {
	var gotURL string
	var gotClass ingest.CallClass
	ok := FetchFunc(func(_ context.Context, url string, class ingest.CallClass) ([]byte, error) {
		gotURL, gotClass = url, class
		return []byte(sampleFeed), nil
	})
	l := NewLocator(ok, "https://archive.test/", "8-K", quietLogger())

	refs := l.Locate(context.Background(), "0000000001", 20)
	if len(refs) != 2 {
		t.Fatalf("got %d refs", len(refs))
	}
	for _, want := range []string{"https://archive.test/cgi-bin/browse-edgar?", "action=getcompany", "CIK=0000000001", "type=8-K", "count=20", "output=atom"} {
		if !strings.Contains(gotURL, want) {
			t.Errorf("feed url %q missing %q", gotURL, want)
		}
	}
	if gotClass != ingest.ClassFeed {
		t.Errorf("class = %q", gotClass)
	}

	l.Locate(context.Background(), " 320193", 5)
	if !strings.Contains(gotURL, "CIK=0000320193") {
		t.Errorf("short CIK not padded: %q", gotURL)
	}

	failing := FetchFunc(func(context.Context, string, ingest.CallClass) ([]byte, error) {
		return nil, errors.New("connection reset")
	})
	if refs := NewLocator(failing, "https://archive.test", "", quietLogger()).Locate(context.Background(), "1", 20); refs != nil {
		t.Errorf("fetch failure must yield nil, got %v", refs)
	}

	garbage := FetchFunc(func(context.Context, string, ingest.CallClass) ([]byte, error) {
		return []byte("<feed><entry>"), nil
	})
	if refs := NewLocator(garbage, "https://archive.test", "", quietLogger()).Locate(context.Background(), "1", 20); refs != nil {
		t.Errorf("parse failure must yield nil, got %v", refs)
	}
}

const sampleIndex = `<html><body>
<table class="tableFile">
<tr><th>Seq</th><th>Description</th><th>Document</th></tr>
<tr><td>1</td><td>FORM 8-K</td><td><a href="/Archives/edgar/data/1/000000000124000002/acme-20240301.htm">acme-20240301.htm</a></td></tr>
<tr><td>2</td><td>PRESS RELEASE</td><td><a href="/Archives/edgar/data/1/000000000124000002/ex991.htm">ex991.htm</a></td></tr>
</table>
<a href="/Archives/edgar/data/1/000000000124000002/outside8k.htm">outside any cell</a>
</body></html>`

func parseDoc(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestSelectDocument(t *testing.T) {
	tests := []struct {
		name   string
		page   string
		ticker string
		want   string
		ok     bool
	}{
		{
			name:   "ticker in href",
			page:   sampleIndex,
			ticker: "ACME",
			want:   "/Archives/edgar/data/1/000000000124000002/acme-20240301.htm",
			ok:     true,
		},
		{
			name:   "8k fallback",
			page:   `<table><tr><td><a href="/a/b/form8k.htm">x</a></td></tr></table>`,
			ticker: "ZZZ",
			want:   "/a/b/form8k.htm",
			ok:     true,
		},
		{
			name:   "first match in document order",
			page:   `<table><tr><td><a href="/a/b/8k-one.htm">1</a></td><td><a href="/a/b/8k-two.htm">2</a></td></tr></table>`,
			ticker: "ZZZ",
			want:   "/a/b/8k-one.htm",
			ok:     true,
		},
		{
			name:   "non htm ignored",
			page:   `<table><tr><td><a href="/a/b/acme.txt">x</a></td><td><a href="/a/b/acme.html">y</a></td></tr></table>`,
			ticker: "ACME",
			ok:     false,
		},
		{
			name:   "links outside cells ignored",
			page:   `<div><a href="/a/b/acme8k.htm">x</a></div>`,
			ticker: "ACME",
			ok:     false,
		},
		{
			name:   "no matches",
			page:   sampleIndex,
			ticker: "ZZZ",
			ok:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectDocument(parseDoc(t, tt.page), tt.ticker)
			if ok != tt.ok || got != tt.want {
				t.Errorf("SelectDocument = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSelectDocumentIsDeterministic(t *testing.T) {
	first, _ := SelectDocument(parseDoc(t, sampleIndex), "acme")
	for i := 0; i < 10; i++ {
		again, _ := SelectDocument(parseDoc(t, sampleIndex), "acme")
		if again != first {
			t.Fatalf("selection changed between runs: %q vs %q", first, again)
		}
	}
}

func TestArchiveURL(t *testing.T) {
	tests := []struct {
		href    string
		want    string
		wantErr bool
	}{
		{"/Archives/edgar/data/320193/000032019324000010/aapl-20240301.htm", "https://www.sec.gov/Archives/edgar/data/320193/000032019324000010/aapl-20240301.htm", false},
		{"/ix?doc=/Archives/edgar/data/320193/000032019324000010/aapl-20240301.htm", "https://www.sec.gov/Archives/edgar/data/320193/000032019324000010/aapl-20240301.htm", false},
		{"1/2/3.htm", "https://www.sec.gov/Archives/edgar/data/1/2/3.htm", false},
		{"only/two.htm", "", true},
		{"file.htm", "", true},
	}
	for _, tt := range tests {
		got, err := ArchiveURL(ingest.ArchiveBaseURL, tt.href)
		if (err != nil) != tt.wantErr {
			t.Errorf("ArchiveURL(%q) err = %v, wantErr %v", tt.href, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ArchiveURL(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestPlainText(t *testing.T) {
	page := `<html><head><title>Form 8-K</title><style>p{color:red}</style></head>
<body>
<div style="display: none"><ix:header><ix:hidden>dei:EntityRegistrantName</ix:hidden></ix:header></div>
<ix:header>hidden facts</ix:header>
<script>var x = 1;</script>
<p>Item 8.01   Other Events.</p>
<p>Acme launched
   Widget X today.</p>
<span hidden>secret</span>
<!-- comment -->
</body></html>`
	got, err := PlainText([]byte(page))
	if err != nil {
		t.Fatalf("PlainText: %v", err)
	}
	want := "Item 8.01 Other Events. Acme launched Widget X today."
	if got != want {
		t.Errorf("PlainText = %q, want %q", got, want)
	}
}

func TestDocumentExtractorEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Archives/edgar/data/1/000000000124000002/0000000001-24-000002-index.htm", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sampleIndex)
	})
	mux.HandleFunc("/Archives/edgar/data/1/000000000124000002/acme-20240301.htm", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><p>Acme Corp announced Widget X.</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := ingest.NewFetcher(ingest.FetchConfig{Identity: ingest.Identity{UserAgent: "Test t@example.com"}})
	d := NewDocumentExtractor(fetcher, srv.URL, quietLogger())

	text := d.ExtractText(context.Background(), srv.URL+"/Archives/edgar/data/1/000000000124000002/0000000001-24-000002-index.htm", "ACME")
	if text != "Acme Corp announced Widget X." {
		t.Errorf("text = %q", text)
	}

	if got := d.ExtractText(context.Background(), srv.URL+"/missing-index.htm", "ACME"); got != "" {
		t.Errorf("404 index page must yield empty text, got %q", got)
	}
	if got := d.ExtractText(context.Background(), srv.URL+"/Archives/edgar/data/1/000000000124000002/0000000001-24-000002-index.htm", "ZZZ"); got != "" {
		t.Errorf("no candidate must yield empty text, got %q", got)
	}
}
