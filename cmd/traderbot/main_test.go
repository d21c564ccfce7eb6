package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"traderbot/internal/app"
	"traderbot/internal/domain"
	"traderbot/internal/store"
)

func writeCSV(t *testing.T, closes ...float64) string {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "AAPL", Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 10}
	}
	path := filepath.Join(t.TempDir(), "aapl.csv")
	if err := store.WriteCSVFile(path, bars); err != nil {
		t.Fatal(err)
	}
	return path
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(app.ConfigEnv, "")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "traderbot.db"))
	t.Setenv("INFLUX_URL", "")
	return dir
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), "version", nil, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("version output = %q", out.String())
	}
	if err := run(context.Background(), "bogus", nil, &out); err == nil {
		t.Error("unknown command should fail")
	}
}

func TestBacktestAndRuns(t *testing.T) {
	isolate(t)
	csv := writeCSV(t, 10, 11, 12, 11, 13, 14)
	ctx := context.Background()

	var out bytes.Buffer
	args := []string{"--csv", csv, "--strategy", "sma-cross", "--fast", "2", "--slow", "3", "--cash", "1000", "--save"}
	if err := run(ctx, "backtest", args, &out); err != nil {
		t.Fatalf("backtest: %v", err)
	}
	report := out.String()
	for _, want := range []string{"Backtest sma-cross AAPL", "total return", "max drawdown", "2024-01-02 .. 2024-01-07"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	out.Reset()
	if err := run(ctx, "runs", nil, &out); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out.String(), "sma-cross") || !strings.Contains(out.String(), "AAPL") {
		t.Errorf("runs output = %q", out.String())
	}
}

func TestBacktestErrors(t *testing.T) {
	isolate(t)
	csv := writeCSV(t, 10, 11)
	ctx := context.Background()
	var out bytes.Buffer

	if err := run(ctx, "backtest", []string{"--csv", csv, "--fast", "5", "--slow", "3"}, &out); err == nil {
		t.Error("inverted windows should fail")
	}
	if err := run(ctx, "backtest", []string{"--csv", csv, "--fast", "2", "--slow", "30"}, &out); err == nil {
		t.Error("too few bars should fail")
	}
	if err := run(ctx, "backtest", []string{"--csv", filepath.Join(t.TempDir(), "none.csv")}, &out); err == nil {
		t.Error("missing csv should fail")
	}
}

func TestSignals(t *testing.T) {
	isolate(t)
	csv := writeCSV(t, 10, 11, 12, 11, 9, 8)
	var out bytes.Buffer
	args := []string{"--csv", csv, "--strategy", "sma", "--rows", "3"}
	t.Setenv("TRADERBOT_FAST_WINDOW", "2")
	t.Setenv("TRADERBOT_SLOW_WINDOW", "3")
	if err := run(context.Background(), "signals", args, &out); err != nil {
		t.Fatalf("signals: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "sma-cross AAPL signals") {
		t.Errorf("signals title missing:\n%s", text)
	}
	if got := strings.Count(text, "2024-01-0"); got != 3 {
		t.Errorf("signals printed %d rows, want 3:\n%s", got, text)
	}
	if !strings.Contains(text, "FLAT") {
		t.Errorf("falling prices should end FLAT:\n%s", text)
	}
}
