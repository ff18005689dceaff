package gstsink

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReconnectConfig contains configuration for exponential backoff rebuilds
type ReconnectConfig struct {
	MaxRetries    int           // Maximum number of consecutive failed attempts (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultReconnectConfig returns default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// SessionFunc builds and runs one pipeline session.
// healthy reports whether the session reached PLAYING before failing,
// which resets the retry counter.
type SessionFunc func(ctx context.Context) (healthy bool, err error)

// runWithReconnect runs sessions until ctx is done, rebuilding after each
// failure with exponential backoff: 1s, 2s, 4s, 8s, 16s, then gives up.
func runWithReconnect(ctx context.Context, session SessionFunc, cfg ReconnectConfig, onRetry func(attempt int)) error {
	retries := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		healthy, err := session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if healthy {
			retries = 0
		}
		if err == nil {
			err = fmt.Errorf("session ended")
		}

		retries++
		if retries > cfg.MaxRetries {
			return fmt.Errorf("gstsink: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}
		if onRetry != nil {
			onRetry(retries)
		}

		delay := calculateBackoff(retries, cfg)
		slog.Warn("gstsink: rebuilding pipeline",
			"error", err,
			"attempt", retries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at MaxRetryDelay
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
