package store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"traderbot/internal/domain"
)

func TestInfluxEquityWriter(t *testing.T) {
	var (
		mu    sync.Mutex
		body  string
		query string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(b)
		query = r.URL.RawQuery
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewInfluxEquityWriter(srv.URL, "token", "acme", "backtests")
	defer w.Close()

	curve := domain.EquityCurve{
		{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Cash: 1000, Equity: 1000},
		{Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Cash: 10, Qty: 9, PositionValue: 999, Equity: 1009},
	}
	if err := w.WriteEquityCurve(context.Background(), "run-9", "AAPL", curve); err != nil {
		t.Fatalf("WriteEquityCurve: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(query, "bucket=backtests") || !strings.Contains(query, "org=acme") {
		t.Errorf("write query = %q, want org and bucket", query)
	}
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d line-protocol lines, want 2:\n%s", len(lines), body)
	}
	if !strings.HasPrefix(lines[0], "equity,run_id=run-9,symbol=AAPL ") {
		t.Errorf("line = %q, want equity measurement tagged with run and symbol", lines[0])
	}
	if !strings.Contains(lines[1], "equity=1009") {
		t.Errorf("line = %q, want equity=1009", lines[1])
	}
}

func TestInfluxEquityWriterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"unauthorized","message":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewInfluxEquityWriter(srv.URL, "bad", "acme", "backtests")
	defer w.Close()

	curve := domain.EquityCurve{{Timestamp: time.Now(), Equity: 1}}
	if err := w.WriteEquityCurve(context.Background(), "run", "X", curve); err == nil {
		t.Error("WriteEquityCurve returned nil error on 401")
	}
	if err := w.WriteEquityCurve(context.Background(), "run", "X", nil); err != nil {
		t.Errorf("empty curve error = %v, want nil", err)
	}
}
