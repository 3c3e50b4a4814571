package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
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

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Hour, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterFirstTokenImmediate(t *testing.T) {
	rl := NewRateLimiter(60)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first Wait returned error: %v", err)
	}
}

func TestRateLimiterRespectsContext(t *testing.T) {
	rl := NewRateLimiter(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = rl.Wait(ctx)
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Wait error = %v, want deadline exceeded", err)
	}
}

func TestRetryPermanent(t *testing.T) {
	sentinel := errors.New("bad symbol")
	attempts := 0
	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(sentinel)
	})
	if err != sentinel {
		t.Errorf("Retry error = %v, want the unwrapped permanent error", err)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetryStopsOnContextError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) || attempts != 1 {
		t.Errorf("Retry = %v after %d attempts, want deadline exceeded after 1", err, attempts)
	}
}

func TestBurstLimiter(t *testing.T) {
	rl := NewBurstLimiter(60, 3)
	now := rl.last

	for i := 0; i < 3; i++ {
		if wait := rl.reserve(now); wait != 0 {
			t.Fatalf("reserve #%d waited %v, want a burst token", i+1, wait)
		}
	}
	// One token per second: the fourth is due a second later.
	if wait := rl.reserve(now); wait != time.Second {
		t.Errorf("reserve after burst = %v, want 1s", wait)
	}
	if wait := rl.reserve(now.Add(time.Second)); wait != 0 {
		t.Errorf("reserve after refill = %v, want 0", wait)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("hello", "rows", 3)
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"rows":3`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestOpenLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	day := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	_, closer, err := OpenLogFile(dir, "mdwindow-server", day)
	if err != nil {
		t.Fatalf("OpenLogFile: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mdwindow-server-2024-01-02.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
