package store

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsTransientSQLiteErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"syntax", errors.New("syntax error"), false},
		{"constraint", errors.New("UNIQUE constraint failed: runs.id"), false},
		{"busy text", errors.New("SQLITE_BUSY"), true},
		{"locked text", errors.New("SQLITE_LOCKED"), true},
		{"short read text", errors.New("IOERR_SHORT_READ"), true},
		{"database is locked", errors.New("database is locked"), true},
		{"table is locked", errors.New("database table is locked"), true},
		{"code 5", errors.New("sqlite: (5) database is busy"), true},
		{"code 6", errors.New("sqlite: (6) table is locked"), true},
		{"code 522", errors.New("sqlite: (522) short read"), true},
		{"wrapped", fmt.Errorf("save chain alice: %w", errors.New("SQLITE_BUSY")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientSQLiteErr(tt.err); got != tt.want {
				t.Errorf("isTransientSQLiteErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryOp(t *testing.T) {
	fast := retryConfig{maxRetries: 2, baseDelay: time.Millisecond, maxDelay: 5 * time.Millisecond}
	permanent := errors.New("no such table: chains")

	tests := []struct {
		name      string
		cfg       retryConfig
		failFirst int   // calls that fail before success; -1 = always fail
		failWith  error // error returned by failing calls
		wantCalls int
		wantErr   bool
	}{
		{"succeeds immediately", fast, 0, nil, 1, false},
		{"permanent error not retried", fast, -1, permanent, 1, true},
		{"busy then success", fast, 2, errors.New("SQLITE_BUSY"), 3, false},
		{"short read then success", fast, 1, errors.New("(522) IOERR_SHORT_READ"), 2, false},
		{"retries exhausted", fast, -1, errors.New("database is locked"), 3, true},
		{"zero retries is one attempt", retryConfig{baseDelay: time.Millisecond, maxDelay: time.Millisecond}, -1, errors.New("SQLITE_BUSY"), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryOp(tt.cfg, func() error {
				calls++
				if tt.failFirst < 0 || calls <= tt.failFirst {
					return tt.failWith
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := retryConfig{baseDelay: 50 * time.Millisecond, maxDelay: 500 * time.Millisecond}
	for attempt, lo := range []time.Duration{50, 100, 200, 400} {
		lo *= time.Millisecond
		d := backoffDelay(cfg, attempt)
		if d < lo || d >= lo+cfg.baseDelay {
			t.Errorf("attempt %d: delay %v not in [%v, %v)", attempt, d, lo, lo+cfg.baseDelay)
		}
	}
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	cfg := retryConfig{baseDelay: 100 * time.Millisecond, maxDelay: 200 * time.Millisecond}
	for _, attempt := range []int{5, 40, 70} {
		if d := backoffDelay(cfg, attempt); d < cfg.maxDelay || d >= cfg.maxDelay+cfg.baseDelay {
			t.Errorf("attempt %d: delay %v, want capped at %v plus jitter", attempt, d, cfg.maxDelay)
		}
	}
}
