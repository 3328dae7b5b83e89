// Package store defines storage interfaces for market data and analysis
// results, with Parquet-backed market data and SQL-backed results.
package store

import (
	"context"
	"errors"
	"time"

	"strikelab/internal/backtest"
	"strikelab/internal/domain"
	"strikelab/internal/maxpain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// ContractStore persists and retrieves futures and options rows per expiry.
type ContractStore interface {
	// WriteContracts persists a batch of contract rows under the given market.
	WriteContracts(ctx context.Context, market string, rows []domain.Contract) error

	// ReadContracts returns every row of one symbol's expiry, ordered by
	// timestamp.
	ReadContracts(ctx context.Context, symbol string, market string, expiry time.Time) ([]domain.Contract, error)

	// ListExpiries returns the stored expiries of a symbol, ascending.
	ListExpiries(ctx context.Context, symbol string, market string) ([]time.Time, error)
}

// RunRecord is a persisted optimizer sweep.
type RunRecord struct {
	ID        string          `json:"id"`
	Strategy  string          `json:"strategy"`
	Symbol    string          `json:"symbol"`
	Direction string          `json:"direction"`
	Mode      string          `json:"mode"`
	CreatedAt time.Time       `json:"created_at"`
	Cells     []backtest.Cell `json:"cells,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Strategy string
	Symbol   string
	Limit    int
}

// ResultStore persists analysis results.
type ResultStore interface {
	// SaveRun stores a sweep and returns its ID, assigning one if empty.
	SaveRun(ctx context.Context, run *RunRecord) (string, error)

	// GetRun returns one sweep with its cells, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns sweep headers (without cells), newest first.
	ListRuns(ctx context.Context, f RunFilter) ([]RunRecord, error)

	// SaveMaxPain upserts the per-timestamp outcome of a max-pain sweep.
	SaveMaxPain(ctx context.Context, symbol string, expiry time.Time, entries []maxpain.Entry) error

	// ListMaxPain returns the stored max-pain entries of an expiry, ascending.
	ListMaxPain(ctx context.Context, symbol string, expiry time.Time) ([]maxpain.Entry, error)
}
