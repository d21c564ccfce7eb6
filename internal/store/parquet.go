package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"traderbot/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ EquityWriter = (*ParquetStore)(nil)

// ParquetStore implements BarStore and EquityWriter using Parquet files on
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

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     float64 `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// EquityRecord is the Parquet schema for one equity curve point.
type EquityRecord struct {
	RunID         string  `parquet:"run_id"`
	Symbol        string  `parquet:"symbol"`
	Timestamp     int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Cash          float64 `parquet:"cash"`
	Qty           int64   `parquet:"qty"`
	PositionValue float64 `parquet:"position_value"`
	Equity        float64 `parquet:"equity"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/bars/<SYMBOL>/<YYYY>.parquet
//
// Bars already on disk are merged with the new ones; on a timestamp clash the
// new bar wins.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], toBarRecord(b))
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading existing bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range. With a zero start or end every year on disk is considered.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	years, err := s.barYears(symbol)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, year := range years {
		if !start.IsZero() && year < start.UTC().Year() {
			continue
		}
		if !end.IsZero() && year > end.UTC().Year() {
			continue
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			b := fromBarRecord(r)
			if inRange(b.Timestamp, start, end) {
				bars = append(bars, b)
			}
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// ListSymbols lists all symbols that have bar data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "bars"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Equity curves
// ---------------------------------------------------------------------------

// WriteEquityCurve stores the curve of a backtest run at
// <DataDir>/backtests/<runID>/equity.parquet, replacing any previous file.
func (s *ParquetStore) WriteEquityCurve(_ context.Context, runID, symbol string, curve domain.EquityCurve) error {
	if runID == "" {
		return fmt.Errorf("%w: empty run id", domain.ErrConfiguration)
	}
	records := make([]EquityRecord, len(curve))
	for i, p := range curve {
		records[i] = EquityRecord{
			RunID:         runID,
			Symbol:        symbol,
			Timestamp:     p.Timestamp.UnixMilli(),
			Cash:          p.Cash,
			Qty:           p.Qty,
			PositionValue: p.PositionValue,
			Equity:        p.Equity,
		}
	}
	if err := writeParquetFile(s.equityPath(runID), records); err != nil {
		return fmt.Errorf("writing equity curve for run %s: %w", runID, err)
	}
	return nil
}

// ReadEquityCurve loads the curve written by WriteEquityCurve.
func (s *ParquetStore) ReadEquityCurve(_ context.Context, runID string) (domain.EquityCurve, error) {
	records, err := readParquetFile[EquityRecord](s.equityPath(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("equity curve for run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("reading equity curve for run %s: %w", runID, err)
	}
	curve := make(domain.EquityCurve, len(records))
	for i, r := range records {
		curve[i] = domain.EquityPoint{
			Timestamp:     time.UnixMilli(r.Timestamp).UTC(),
			Cash:          r.Cash,
			Qty:           r.Qty,
			PositionValue: r.PositionValue,
			Equity:        r.Equity,
		}
	}
	return curve, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/bars/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "bars", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// equityPath returns the filesystem path of a run's equity curve.
// Layout: <dataDir>/backtests/<runID>/equity.parquet
func (s *ParquetStore) equityPath(runID string) string {
	return filepath.Join(s.DataDir, "backtests", runID, "equity.parquet")
}

// barYears lists the years with a bar file for symbol, ascending.
func (s *ParquetStore) barYears(symbol string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "bars", strings.ToUpper(symbol)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		var year int
		if e.IsDir() {
			continue
		}
		if _, err := fmt.Sscanf(e.Name(), "%d.parquet", &year); err == nil {
			years = append(years, year)
		}
	}
	sort.Ints(years)
	return years, nil
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

func toBarRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:     strings.ToUpper(b.Symbol),
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func fromBarRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
