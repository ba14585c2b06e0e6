// Package retry repeats a failing call with a growing delay.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/newsbot/internal/logger"
)

type Config struct {
	Name        string // for logs
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // double the delay after every attempt
}

// Startup is used for the login checks run before the scheduler starts.
var Startup = Config{Name: "startup", MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}

type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, ctx ends or
// MaxAttempts is reached.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	delay := cfg.Delay

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var p *permanent
		if errors.As(err, &p) {
			return p.err
		}
		if attempt == attempts {
			return fmt.Errorf("%s: failed after %d attempts: %w", cfg.Name, attempts, err)
		}

		logger.Warn("retrying", "op", cfg.Name, "attempt", attempt, "of", attempts, "wait", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if cfg.Backoff {
			delay *= 2
		}
	}
}
