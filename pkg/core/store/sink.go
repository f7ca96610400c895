package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"filing_signals/pkg/core/models"

	"github.com/sirupsen/logrus"
)

// Sink receives accepted extraction results. Implementations must be safe
// for concurrent use.
type Sink interface {
	Write(ctx context.Context, r models.ExtractionResult) error
	Close() error
}

// CSVSink appends one row per accepted result and flushes after every row,
// so a crash loses at most the row being written.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// CreateCSV truncates path, writes the header and flushes it.
func CreateCSV(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	s := &CSVSink{file: f, w: csv.NewWriter(f)}
	if err := s.writeRow(models.CSVHeader); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *CSVSink) Write(_ context.Context, r models.ExtractionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRow(r.Row())
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush row: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// MultiSink writes to a primary sink and any number of mirrors. Only the
// primary's errors are returned; mirror failures are logged.
type MultiSink struct {
	Primary Sink
	Mirrors []Sink
	Log     logrus.FieldLogger
}

func (m *MultiSink) Write(ctx context.Context, r models.ExtractionResult) error {
	if err := m.Primary.Write(ctx, r); err != nil {
		return err
	}
	for _, mirror := range m.Mirrors {
		if err := mirror.Write(ctx, r); err != nil && m.Log != nil {
			m.Log.WithError(err).WithField("ticker", r.StockName).Warn("mirror write failed")
		}
	}
	return nil
}

func (m *MultiSink) Close() error {
	err := m.Primary.Close()
	for _, mirror := range m.Mirrors {
		if cerr := mirror.Close(); cerr != nil && m.Log != nil {
			m.Log.WithError(cerr).Warn("failed to close mirror")
		}
	}
	return err
}
