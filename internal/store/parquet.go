package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"strikelab/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ ContractStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and ContractStore using Parquet files on
// disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
	Turnover  float64 `parquet:"turnover"`
}

// ContractRecord is the Parquet schema for futures and options rows.
type ContractRecord struct {
	Symbol       string  `parquet:"symbol"`
	Instrument   string  `parquet:"instrument"`
	Expiry       int64   `parquet:"expiry,timestamp(millisecond)"`
	Strike       float64 `parquet:"strike"`
	OptionType   string  `parquet:"option_type"`
	Open         float64 `parquet:"open"`
	High         float64 `parquet:"high"`
	Low          float64 `parquet:"low"`
	Close        float64 `parquet:"close"`
	Settle       float64 `parquet:"settle"`
	Contracts    int64   `parquet:"contracts"`
	OpenInterest float64 `parquet:"open_interest"`
	ChangeInOI   float64 `parquet:"change_in_oi"`
	Timestamp    int64   `parquet:"timestamp,timestamp(millisecond)"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
//
// Existing rows with the same timestamp are replaced.
func (s *ParquetStore) WriteBars(_ context.Context, market string, bars []domain.Bar) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    k.symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Turnover:  b.Turnover,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeRecords(existing, records,
			func(r BarRecord) int64 { return r.Timestamp },
			func(r BarRecord) string { return "" })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range, ordered by timestamp.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.barPath(symbol, market, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:    r.Symbol,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
				Turnover:  r.Turnover,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	return listDirs(filepath.Join(s.DataDir, market, "daily"))
}

// ---------------------------------------------------------------------------
// ContractStore implementation
// ---------------------------------------------------------------------------

// WriteContracts writes contract rows to one file per symbol and expiry:
//
//	<DataDir>/<market>/contracts/<SYMBOL>/<YYYY-MM-DD>.parquet
//
// Rows are keyed by (timestamp, instrument, strike, option type); existing
// rows with the same key are replaced.
func (s *ParquetStore) WriteContracts(_ context.Context, market string, rows []domain.Contract) error {
	type key struct {
		symbol string
		expiry string
	}
	groups := make(map[key][]ContractRecord)
	for _, c := range rows {
		k := key{symbol: strings.ToUpper(c.Symbol), expiry: c.Expiry.Format(time.DateOnly)}
		groups[k] = append(groups[k], ContractRecord{
			Symbol:       k.symbol,
			Instrument:   string(c.Instrument),
			Expiry:       c.Expiry.UnixMilli(),
			Strike:       c.Strike,
			OptionType:   string(c.OptionType),
			Open:         c.Open,
			High:         c.High,
			Low:          c.Low,
			Close:        c.Close,
			Settle:       c.Settle,
			Contracts:    c.Contracts,
			OpenInterest: c.OpenInterest,
			ChangeInOI:   c.ChangeInOI,
			Timestamp:    c.Timestamp.UnixMilli(),
		})
	}

	for k, records := range groups {
		path := s.contractPath(k.symbol, market, k.expiry)

		existing, _ := readParquetFile[ContractRecord](path)
		merged := mergeRecords(existing, records,
			func(r ContractRecord) int64 { return r.Timestamp },
			func(r ContractRecord) string {
				return fmt.Sprintf("%s|%g|%s", r.Instrument, r.Strike, r.OptionType)
			})

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing contracts for %s/%s: %w", k.symbol, k.expiry, err)
		}
	}
	return nil
}

// ReadContracts reads every row of one symbol's expiry.
func (s *ParquetStore) ReadContracts(_ context.Context, symbol string, market string, expiry time.Time) ([]domain.Contract, error) {
	path := s.contractPath(symbol, market, expiry.Format(time.DateOnly))
	records, err := readParquetFile[ContractRecord](path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("contracts %s %s: %w", strings.ToUpper(symbol), expiry.Format(time.DateOnly), ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	rows := make([]domain.Contract, len(records))
	for i, r := range records {
		rows[i] = domain.Contract{
			Symbol:       r.Symbol,
			Instrument:   domain.Instrument(r.Instrument),
			Expiry:       time.UnixMilli(r.Expiry).UTC(),
			Strike:       r.Strike,
			OptionType:   domain.OptionType(r.OptionType),
			Open:         r.Open,
			High:         r.High,
			Low:          r.Low,
			Close:        r.Close,
			Settle:       r.Settle,
			Contracts:    r.Contracts,
			OpenInterest: r.OpenInterest,
			ChangeInOI:   r.ChangeInOI,
			Timestamp:    time.UnixMilli(r.Timestamp).UTC(),
		}
	}
	return rows, nil
}

// ListExpiries lists the expiries stored for a symbol.
func (s *ParquetStore) ListExpiries(_ context.Context, symbol string, market string) ([]time.Time, error) {
	dir := filepath.Join(s.DataDir, market, "contracts", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var expiries []time.Time
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".parquet")
		if e.IsDir() || !ok {
			continue
		}
		t, err := time.Parse(time.DateOnly, name)
		if err != nil {
			continue
		}
		expiries = append(expiries, t)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// contractPath returns the filesystem path for a contract Parquet file.
// Layout: <dataDir>/<market>/contracts/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) contractPath(symbol, market, expiry string) string {
	return filepath.Join(s.DataDir, market, "contracts", strings.ToUpper(symbol), expiry+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeRecords deduplicates records by (timestamp, id), preferring incoming
// records over existing ones. Results are sorted by timestamp then id.
func mergeRecords[T any](existing, incoming []T, ts func(T) int64, id func(T) string) []T {
	type key struct {
		ts int64
		id string
	}
	seen := make(map[key]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{ts(r), id(r)}] = r
	}
	for _, r := range incoming {
		seen[key{ts(r), id(r)}] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		ti, tj := ts(merged[i]), ts(merged[j])
		if ti != tj {
			return ti < tj
		}
		return id(merged[i]) < id(merged[j])
	})
	return merged
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
