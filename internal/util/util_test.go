package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"traderbot/internal/domain"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(domain.ErrConfiguration)
	})
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Retry error = %v, want ErrConfiguration", err)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Hour, func() error { return errors.New("boom") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if !rl.Allow() {
		t.Error("first Allow() should succeed")
	}
	if rl.Allow() {
		t.Error("second immediate Allow() should fail without burst")
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewBurstRateLimiter(1, 3)
	for i := 0; i < 3; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("Wait #%d: %v", i, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait after burst = %v, want DeadlineExceeded", err)
	}

	unlimited := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !unlimited.Allow() {
			t.Fatal("disabled limiter should always allow")
		}
	}
}

func TestTradingCalendarNew(t *testing.T) {
	cal := NewTradingCalendar(domain.MarketUS)
	if cal == nil {
		t.Fatal("NewTradingCalendar returned nil")
	}
}

func TestTradingCalendarSessions(t *testing.T) {
	cal := NewTradingCalendar(domain.MarketUS)
	et := cal.Location()

	cases := []struct {
		when time.Time
		open bool
	}{
		{time.Date(2024, 3, 5, 10, 0, 0, 0, et), true},    // Tuesday morning
		{time.Date(2024, 3, 5, 9, 29, 0, 0, et), false},   // before the bell
		{time.Date(2024, 3, 5, 16, 0, 0, 0, et), false},   // at the close
		{time.Date(2024, 3, 9, 12, 0, 0, 0, et), false},   // Saturday
		{time.Date(2024, 3, 29, 12, 0, 0, 0, et), false},  // Good Friday
		{time.Date(2024, 7, 4, 12, 0, 0, 0, et), false},   // Independence Day
		{time.Date(2024, 11, 28, 12, 0, 0, 0, et), false}, // Thanksgiving
		{time.Date(2023, 1, 2, 12, 0, 0, 0, et), false},   // New Year observed
		{time.Date(2021, 12, 31, 12, 0, 0, 0, et), true},  // Saturday New Year not observed
	}
	for _, tc := range cases {
		if got := cal.IsMarketOpen(tc.when); got != tc.open {
			t.Errorf("IsMarketOpen(%v) = %v, want %v", tc.when, got, tc.open)
		}
	}

	// Friday after the close: next open is Monday 09:30.
	fri := time.Date(2024, 3, 8, 17, 0, 0, 0, et)
	if got, want := cal.NextOpen(fri), time.Date(2024, 3, 11, 9, 30, 0, 0, et); !got.Equal(want) {
		t.Errorf("NextOpen(%v) = %v, want %v", fri, got, want)
	}
	if got, want := cal.NextClose(fri), time.Date(2024, 3, 11, 16, 0, 0, 0, et); !got.Equal(want) {
		t.Errorf("NextClose(%v) = %v, want %v", fri, got, want)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("json output = %q, want msg field", out)
	}

	buf.Reset()
	NewLoggerTo(&buf, "debug", "text").Debug("plain")
	if !strings.Contains(buf.String(), "msg=plain") {
		t.Errorf("text output = %q, want msg=plain", buf.String())
	}

	if ParseLevel("bogus") != slog.LevelInfo {
		t.Error("unknown level should default to info")
	}
}
