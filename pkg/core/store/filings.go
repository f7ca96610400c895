package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"filing_signals/pkg/core/models"
)

// ErrStoreMissing is returned by Load when the intermediate store has not
// been produced yet.
var ErrStoreMissing = errors.New("filing store not found")

// FilingStore is the JSON array of filing records handed from retrieval to
// extraction.
type FilingStore struct {
	Path string
}

// NewFilingStore creates a store backed by path.
func NewFilingStore(path string) *FilingStore {
	return &FilingStore{Path: path}
}

// Save replaces the store with records in one atomic write. Records without
// text are dropped.
func (s *FilingStore) Save(records []models.FilingRecord) error {
	kept := make([]models.FilingRecord, 0, len(records))
	for _, r := range records {
		if r.HasText() {
			kept = append(kept, r)
		}
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp store: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(kept); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode filing records: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}

// Load reads every record. A missing file is reported as ErrStoreMissing.
func (s *FilingStore) Load() ([]models.FilingRecord, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrStoreMissing, s.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read filing store: %w", err)
	}

	var records []models.FilingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse filing store %s: %w", s.Path, err)
	}
	return records, nil
}
