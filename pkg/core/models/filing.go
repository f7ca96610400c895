// Package models holds the records that flow between the retrieval and
// extraction stages.
package models

import (
	"fmt"
	"strings"
)

// CompanyRef identifies one company in the run universe.
type CompanyRef struct {
	Ticker string `json:"ticker"`
	CIK    string `json:"cik"` // 10-digit, zero-padded
}

// FilingRef points at a filing index page returned by the EDGAR atom feed.
type FilingRef struct {
	DocumentURL string `json:"document_url"`
	UpdatedAt   string `json:"updated_at"`
}

// FilingRecord is the unit persisted in the intermediate store.
// Records with empty Text are never written.
type FilingRecord struct {
	Ticker     string `json:"ticker"`
	FilingTime string `json:"filing_time"`
	Text       string `json:"text"`
}

// HasText reports whether the record carries any extractable content.
func (r FilingRecord) HasText() bool {
	return strings.TrimSpace(r.Text) != ""
}

// PadCIK normalizes a registry identifier to the 10-digit form EDGAR uses.
func PadCIK(cik string) string {
	cik = strings.TrimLeft(strings.TrimSpace(cik), "0")
	if cik == "" {
		return ""
	}
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// FormatCIK renders a numeric registry identifier as a padded CIK.
func FormatCIK(n int64) string {
	return fmt.Sprintf("%010d", n)
}
