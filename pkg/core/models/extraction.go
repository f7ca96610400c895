package models

import "strings"

// CSVHeader is the fixed first row of the tabular output.
var CSVHeader = []string{"Company Name", "Stock Name", "Filing Time", "New Product", "Product Description"}

// ExtractionResult is the five-field fact the model must return.
type ExtractionResult struct {
	CompanyName        string `json:"Company Name"`
	StockName          string `json:"Stock Name"`
	FilingTime         string `json:"Filing Time"`
	NewProduct         string `json:"New Product"`
	ProductDescription string `json:"Product Description"`
}

// Complete is true iff every field is non-empty after trimming whitespace.
func (r ExtractionResult) Complete() bool {
	for _, v := range r.Row() {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (r ExtractionResult) Trimmed() ExtractionResult {
	return ExtractionResult{
		CompanyName:        strings.TrimSpace(r.CompanyName),
		StockName:          strings.TrimSpace(r.StockName),
		FilingTime:         strings.TrimSpace(r.FilingTime),
		NewProduct:         strings.TrimSpace(r.NewProduct),
		ProductDescription: strings.TrimSpace(r.ProductDescription),
	}
}

// Row returns the fields in CSVHeader order.
func (r ExtractionResult) Row() []string {
	return []string{r.CompanyName, r.StockName, r.FilingTime, r.NewProduct, r.ProductDescription}
}

// FailureKind classifies why an extraction did not yield a usable result.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureNetwork          FailureKind = "network_failure"
	FailureParse            FailureKind = "parse_failure"
	FailureSchemaIncomplete FailureKind = "schema_incomplete"
)

// Outcome is the tagged result of one Fact Extractor invocation.
// Result is set only when Failure is FailureNone.
type Outcome struct {
	Ticker  string
	Result  *ExtractionResult
	Failure FailureKind
	Err     error
}

// OK reports whether the outcome carries a complete result.
func (o Outcome) OK() bool {
	return o.Failure == FailureNone && o.Result != nil
}

// RunSummary aggregates counters for a single stage run.
type RunSummary struct {
	RunID            string
	Companies        int
	CompaniesSkipped int
	Filings          int
	FilingsEmpty     int
	Records          int
	Accepted         int
	Discarded        map[FailureKind]int
}

// Discard increments the discard counter for kind.
func (s *RunSummary) Discard(kind FailureKind) {
	if s.Discarded == nil {
		s.Discarded = make(map[FailureKind]int)
	}
	s.Discarded[kind]++
}
