package gather

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// LoadSymbols reads a universe file: a CSV with a header row whose first
// column holds symbols. Symbols are upper-cased and deduplicated in file
// order; blank cells are skipped.
func LoadSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbol list %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading symbol list %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(records)-1)
	symbols := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[0]))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}
