// Package limiter defines interfaces and implementations for signin rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter controls signin attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether signin is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string) (bool, time.Duration, error)
	// Success resets counters after a successful signin.
	Success(ctx context.Context, username string) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string) (bool, time.Duration, error)
}

// Defaults used by the embedded store.
const (
	DefaultWindow   = 15 * time.Minute
	DefaultMaxFails = 5
	DefaultBlockFor = 15 * time.Minute
)
