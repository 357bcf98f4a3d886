// retry.go retries store writes that fail on transient SQLite contention.
//
// The CLI and a long-running `mimic serve` may write the same WAL database.
// busy_timeout absorbs most SQLITE_BUSY cases at the connection level; what
// gets through (LOCKED, IOERR_SHORT_READ, a busy that outlived the timeout)
// is retried here with exponential backoff and jitter.
package store

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// retryConfig controls retry behavior for transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// defaultRetryConfig is used for all store write operations. SaveRegistry
// rewrites whole tables, so the cap is generous.
var defaultRetryConfig = retryConfig{
	maxRetries: 4,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   1 * time.Second,
}

// isTransientSQLiteErr reports whether err is worth retrying: SQLITE_BUSY,
// SQLITE_LOCKED or SQLITE_IOERR_SHORT_READ, either as a typed driver error
// or recognizable in the message text of a wrapped one.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_IOERR_SHORT_READ:
			return true
		}
		switch se.Code() & 0xff { // primary result code
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",   // SQLITE_BUSY
		"(6)",   // SQLITE_LOCKED
		"(522)", // SQLITE_IOERR_SHORT_READ
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOp runs fn until it succeeds, fails with a non-transient error, or
// cfg.maxRetries retries have been spent.
func retryOp(cfg retryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt < cfg.maxRetries {
			time.Sleep(backoffDelay(cfg, attempt))
		}
	}
	return lastErr
}

// backoffDelay is min(baseDelay * 2^attempt, maxDelay) plus jitter in
// [0, baseDelay).
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.maxDelay
	if attempt < 32 {
		if d := cfg.baseDelay << uint(attempt); d > 0 && d < cfg.maxDelay {
			delay = d
		}
	}
	if cfg.baseDelay > 0 {
		delay += rand.N(cfg.baseDelay)
	}
	return delay
}
