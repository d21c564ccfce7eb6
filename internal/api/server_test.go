package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/engine"
	"traderbot/internal/store"
)

func testBars() []domain.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	closes := []float64{10, 11, 12, 13}
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	return bars
}

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bars := store.NewParquetStore(t.TempDir())
	if err := bars.WriteBars(context.Background(), testBars()); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	svc := NewService(bars, db, db, Defaults{
		Strategy: "buy-and-hold",
		Symbol:   "TEST",
		Cash:     1000,
		Fast:     2,
		Slow:     3,
	})
	return svc, db
}

func newTestServer(t *testing.T) (*Server, *Service, *store.SQLiteStore) {
	t.Helper()
	svc, db := newTestService(t)
	cfg := config.Default()
	return NewServer(cfg, svc, NewHub()), svc, db
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	s, _, _ := newTestServer(t)
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rec.Code)
	}
	rec = doJSON(t, s.Handler(), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("GET /metrics = %d, body missing runtime metrics", rec.Code)
	}
}

func TestBacktestLifecycle(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/backtests", BacktestRequest{Curve: true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /backtests = %d: %s", rec.Code, rec.Body.String())
	}
	var created BacktestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Run.ID == "" {
		t.Fatal("run ID is empty")
	}
	if created.Run.Strategy != "buy-and-hold" || created.Run.Symbol != "TEST" {
		t.Errorf("run = %s/%s, want buy-and-hold/TEST", created.Run.Strategy, created.Run.Symbol)
	}
	if created.Run.Report.FinalEquity <= created.Run.Report.InitialEquity {
		t.Errorf("final equity %v should exceed initial %v on rising prices",
			created.Run.Report.FinalEquity, created.Run.Report.InitialEquity)
	}
	if len(created.Curve) != 4 {
		t.Errorf("curve has %d points, want 4", len(created.Curve))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/backtests/"+created.Run.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /backtests/:id = %d: %s", rec.Code, rec.Body.String())
	}
	var got BacktestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Run.ID != created.Run.ID {
		t.Errorf("GetRun ID = %q, want %q", got.Run.ID, created.Run.ID)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/backtests?limit=10", nil)
	var list struct {
		Runs []domain.BacktestRun `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Runs) != 1 {
		t.Errorf("ListRuns returned %d runs, want 1", len(list.Runs))
	}
}

func TestBacktestInlineBars(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := BacktestRequest{Strategy: "sma", Symbol: "inline", Fast: 1, Slow: 2, Bars: testBars()}
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/backtests", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST inline = %d: %s", rec.Code, rec.Body.String())
	}
	var resp BacktestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Run.Strategy != "sma-cross" || resp.Run.Symbol != "INLINE" {
		t.Errorf("run = %s/%s, want sma-cross/INLINE", resp.Run.Strategy, resp.Run.Symbol)
	}
	if resp.Run.Params["source"] != "inline" || resp.Run.Params["fast"] != "1" {
		t.Errorf("params = %v", resp.Run.Params)
	}
}

func TestErrorMapping(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown strategy", http.MethodPost, "/api/v1/backtests", BacktestRequest{Strategy: "moon"}, http.StatusBadRequest},
		{"bad windows", http.MethodPost, "/api/v1/backtests", BacktestRequest{Strategy: "sma-cross", Fast: 5, Slow: 3}, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/v1/backtests", BacktestRequest{Start: "yesterday"}, http.StatusBadRequest},
		{"no data", http.MethodPost, "/api/v1/backtests", BacktestRequest{Symbol: "NONE"}, http.StatusBadRequest},
		{"missing run", http.MethodGet, "/api/v1/backtests/nope", nil, http.StatusNotFound},
		{"bad limit", http.MethodGet, "/api/v1/backtests?limit=x", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Errorf("%s %s = %d, want %d: %s", tc.method, tc.path, rec.Code, tc.want, rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backtests", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", rec.Code)
	}
}

func TestStrategiesAndSignals(t *testing.T) {
	s, _, db := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/strategies", nil)
	if !strings.Contains(rec.Body.String(), "sma-cross") {
		t.Errorf("strategies = %s", rec.Body.String())
	}

	sig := &domain.SignalRecord{
		StrategyID: "buy-and-hold",
		Symbol:     "TEST",
		Value:      domain.SignalLong,
		Price:      12,
		BarTime:    time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.SaveSignal(context.Background(), sig); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/signals", nil)
	var out struct {
		Signals []domain.SignalRecord `json:"signals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Signals) != 1 || out.Signals[0].Price != 12 {
		t.Errorf("signals = %+v, want one record at 12", out.Signals)
	}
}

func TestGRPCBacktest(t *testing.T) {
	s, _, _ := newTestServer(t)
	lis := bufconn.Listen(1 << 20)
	go s.GRPCServer().Serve(lis)
	t.Cleanup(s.GRPCServer().Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := NewBacktestClient(conn)

	resp, err := client.RunBacktest(ctx, BacktestRequest{Symbol: "test"})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}
	if resp.Run.ID == "" || resp.Run.Symbol != "TEST" {
		t.Errorf("run = %+v", resp.Run)
	}

	got, err := client.GetRun(ctx, resp.Run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Run.ID != resp.Run.ID {
		t.Errorf("GetRun ID = %q, want %q", got.Run.ID, resp.Run.ID)
	}

	_, err = client.GetRun(ctx, "missing")
	if status.Code(err) != codes.NotFound {
		t.Errorf("GetRun(missing) code = %v, want NotFound", status.Code(err))
	}
	_, err = client.RunBacktest(ctx, BacktestRequest{Strategy: "moon"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("RunBacktest(moon) code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestHubPublishesTicks(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.PublishTick(engine.TickResult{Symbol: "TEST", Action: engine.ActionBuy, Close: 12})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var ev struct {
		Type string            `json:"type"`
		Data engine.TickResult `json:"data"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "tick" || ev.Data.Symbol != "TEST" || ev.Data.Action != engine.ActionBuy {
		t.Errorf("event = %+v", ev)
	}
}

func TestServiceWithoutStores(t *testing.T) {
	svc := NewService(nil, nil, nil, Defaults{Strategy: "buy-and-hold", Symbol: "X", Cash: 100})
	ctx := context.Background()
	if _, err := svc.RunBacktest(ctx, BacktestRequest{}); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("RunBacktest without bars = %v, want ErrConfiguration", err)
	}
	if _, err := svc.ListRuns(ctx, 0); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("ListRuns without store = %v, want ErrConfiguration", err)
	}
	resp, err := svc.RunBacktest(ctx, BacktestRequest{Bars: testBars()})
	if err != nil {
		t.Fatalf("inline RunBacktest: %v", err)
	}
	if resp.Run.Report.Bars != 4 {
		t.Errorf("report bars = %d, want 4", resp.Run.Report.Bars)
	}
}
