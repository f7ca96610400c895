package store

import (
	"context"
	"fmt"
	"time"

	"filing_signals/pkg/core/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultResultsTable mirrors the CSV output.
const DefaultResultsTable = "extracted_entities"

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink mirrors accepted results into a table keyed by run, ticker,
// filing time and product.
type PostgresSink struct {
	db    Execer
	table string
	runID string
	now   func() time.Time
}

// NewPostgresSink creates a sink writing to table (DefaultResultsTable when
// empty) tagged with runID.
func NewPostgresSink(db Execer, table, runID string) *PostgresSink {
	if table == "" {
		table = DefaultResultsTable
	}
	return &PostgresSink{db: db, table: table, runID: runID, now: time.Now}
}

// EnsureSchema creates the results table when it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL,
			company_name TEXT NOT NULL,
			stock_name TEXT NOT NULL,
			filing_time TEXT NOT NULL,
			new_product TEXT NOT NULL,
			product_description TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, stock_name, filing_time, new_product)
		)`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

// InsertSQL builds the upsert for one result.
func (s *PostgresSink) InsertSQL(r models.ExtractionResult) (string, []any, error) {
	return sq.Insert(s.table).
		Columns("run_id", "company_name", "stock_name", "filing_time", "new_product", "product_description", "created_at").
		Values(s.runID, r.CompanyName, r.StockName, r.FilingTime, r.NewProduct, r.ProductDescription, s.now().UTC()).
		Suffix("ON CONFLICT (run_id, stock_name, filing_time, new_product) DO UPDATE SET product_description = EXCLUDED.product_description").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (s *PostgresSink) Write(ctx context.Context, r models.ExtractionResult) error {
	query, args, err := s.InsertSQL(r)
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save result for %s: %w", r.StockName, err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresSink) Close() error { return nil }
