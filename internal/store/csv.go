package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"traderbot/internal/domain"
)

var _ BarStore = (*CSVStore)(nil)

// CSVStore reads and writes OHLCV bars as CSV files. Path may name a single
// file, which then serves every symbol, or a directory holding one
// <SYMBOL>.csv file per symbol.
type CSVStore struct {
	Path string
	// Encoding is an optional WHATWG label ("utf-8", "gbk", "windows-1252",
	// ...) for the input files. Empty means UTF-8.
	Encoding string
}

// NewCSVStore creates a CSVStore for path.
func NewCSVStore(path, encoding string) *CSVStore {
	return &CSVStore{Path: path, Encoding: encoding}
}

// ReadBars loads the bars of symbol within [start, end].
func (s *CSVStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	path, err := s.fileFor(symbol)
	if err != nil {
		return nil, err
	}
	all, err := ReadCSVFile(path, symbol, s.Encoding)
	if err != nil {
		return nil, err
	}
	bars := all[:0]
	for _, b := range all {
		if inRange(b.Timestamp, start, end) {
			bars = append(bars, b)
		}
	}
	return bars, nil
}

// WriteBars writes bars grouped by symbol. In single-file mode every bar goes
// to Path; existing content is replaced.
func (s *CSVStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	groups := make(map[string][]domain.Bar)
	for _, b := range bars {
		groups[strings.ToUpper(b.Symbol)] = append(groups[strings.ToUpper(b.Symbol)], b)
	}

	if s.isDir() {
		for symbol, group := range groups {
			if err := WriteCSVFile(filepath.Join(s.Path, symbol+".csv"), group); err != nil {
				return err
			}
		}
		return nil
	}
	if len(groups) > 1 {
		return fmt.Errorf("%w: csv file %s holds a single symbol, got %d", domain.ErrConfiguration, s.Path, len(groups))
	}
	return WriteCSVFile(s.Path, bars)
}

// ListSymbols lists the <SYMBOL>.csv files in directory mode. In single-file
// mode the file name without extension is returned.
func (s *CSVStore) ListSymbols(_ context.Context) ([]string, error) {
	if !s.isDir() {
		if _, err := os.Stat(s.Path); err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		return []string{strings.ToUpper(strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path)))}, nil
	}
	entries, err := os.ReadDir(s.Path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			out = append(out, strings.ToUpper(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *CSVStore) isDir() bool {
	fi, err := os.Stat(s.Path)
	return err == nil && fi.IsDir()
}

func (s *CSVStore) fileFor(symbol string) (string, error) {
	if s.Path == "" {
		return "", fmt.Errorf("%w: csv path is not set", domain.ErrConfiguration)
	}
	if s.isDir() {
		return filepath.Join(s.Path, strings.ToUpper(symbol)+".csv"), nil
	}
	return s.Path, nil
}

// ReadCSVFile opens path and parses it with ParseCSV, decoding it from the
// named text encoding first when one is given.
func ReadCSVFile(path, symbol, encoding string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if encoding != "" && !strings.EqualFold(encoding, "utf-8") && !strings.EqualFold(encoding, "utf8") {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown csv encoding %q", domain.ErrConfiguration, encoding)
		}
		r = transform.NewReader(f, enc.NewDecoder())
	}

	bars, err := ParseCSV(r, symbol)
	if err != nil {
		return nil, fmt.Errorf("parsing csv %s: %w", path, err)
	}
	return bars, nil
}

// ParseCSV reads OHLCV rows. The header must name a timestamp column
// ("timestamp", "time" or "date") and open, high, low, close and volume
// columns, matched case-insensitively; other columns are ignored. Rows are
// returned sorted by timestamp.
func ParseCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: csv is empty", domain.ErrInsufficientData)
		}
		return nil, err
	}

	cols := map[string]int{}
	tsCol := -1
	for i, name := range header {
		lower := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		switch lower {
		case "timestamp", "time", "date":
			if tsCol < 0 {
				tsCol = i
			}
		case "open", "high", "low", "close", "volume":
			cols[lower] = i
		}
	}
	if tsCol < 0 {
		return nil, fmt.Errorf("%w: csv data must include a timestamp column", domain.ErrInvalidData)
	}
	var missing []string
	for _, c := range []string{"close", "high", "low", "open", "volume"} {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: csv is missing required columns: %s", domain.ErrInvalidData, strings.Join(missing, ", "))
	}

	var bars []domain.Bar
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		ts, err := ParseTimestamp(field(rec, tsCol))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrInvalidData, line, err)
		}
		b := domain.Bar{Symbol: strings.ToUpper(symbol), Timestamp: ts}
		for name, dst := range map[string]*float64{
			"open": &b.Open, "high": &b.High, "low": &b.Low, "close": &b.Close, "volume": &b.Volume,
		} {
			v, err := strconv.ParseFloat(field(rec, cols[name]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: line %d: bad %s value %q", domain.ErrInvalidData, line, name, field(rec, cols[name]))
			}
			*dst = v
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// ParseTimestamp parses RFC3339, common date/datetime layouts and Unix
// seconds. Times without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// WriteCSVFile writes bars to path in the format ParseCSV reads.
func WriteCSVFile(path string, bars []domain.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating csv %s: %w", path, err)
	}
	if err := WriteCSV(f, bars); err != nil {
		f.Close()
		return fmt.Errorf("writing csv %s: %w", path, err)
	}
	return f.Close()
}

// WriteCSV writes a header and one row per bar.
func WriteCSV(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
