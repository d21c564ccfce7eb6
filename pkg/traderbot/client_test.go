package traderbot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"traderbot/internal/api"
	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/store"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	c := NewClient(baseURL + "/")

	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.baseURL != baseURL {
		t.Errorf("expected baseURL %q, got %q", baseURL, c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestClientAgainstServer(t *testing.T) {
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	svc := api.NewService(nil, db, db, api.Defaults{Strategy: "buy-and-hold", Symbol: "ABC", Cash: 500})
	srv := httptest.NewServer(api.NewServer(config.Default(), svc, nil).Handler())
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL)
	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var bars []domain.Bar
	for i, px := range []float64{20, 21, 19, 22} {
		bars = append(bars, domain.Bar{Timestamp: start.AddDate(0, 0, i), Open: px, High: px, Low: px, Close: px})
	}
	resp, err := c.RunBacktest(ctx, BacktestRequest{Bars: bars})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}
	if resp.Run.Symbol != "ABC" || resp.Run.Report.Bars != 4 {
		t.Errorf("run = %+v", resp.Run)
	}

	runs, err := c.ListRuns(ctx, 5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != resp.Run.ID {
		t.Errorf("ListRuns = %+v", runs)
	}

	_, err = c.GetRun(ctx, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("GetRun(missing) = %v, want 404 APIError", err)
	}

	signals, err := c.ListSignals(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("ListSignals = %d records, want 0", len(signals))
	}
}
