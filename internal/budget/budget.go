// Package budget tracks calls made against a news provider's call ceiling.
package budget

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/newsbot/internal/logger"
)

// ErrExhausted is returned by Take once the ceiling is reached. It is a
// policy state, not a failure.
var ErrExhausted = errors.New("budget: call ceiling reached")

// ResetPolicy decides when the counter returns to zero.
type ResetPolicy int

const (
	// Never keeps counting for the lifetime of the process.
	Never ResetPolicy = iota
	// Daily resets at midnight in the budget's location.
	Daily
)

// ParsePolicy maps "never" and "daily" to a ResetPolicy.
func ParsePolicy(s string) (ResetPolicy, error) {
	switch s {
	case "never":
		return Never, nil
	case "daily":
		return Daily, nil
	}
	return Never, fmt.Errorf("budget: unknown reset policy %q", s)
}

func (p ResetPolicy) String() string {
	if p == Daily {
		return "daily"
	}
	return "never"
}

// Budget counts provider calls against a fixed ceiling.
type Budget struct {
	mu       sync.Mutex
	ceiling  int
	used     int
	policy   ResetPolicy
	loc      *time.Location
	resetAt  time.Time
	now      func() time.Time
	log      *slog.Logger
	exhausts int // times the ceiling was hit, across periods
	notified bool
}

type Option func(*Budget)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Budget) { b.now = now }
}

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(b *Budget) { b.loc = loc }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Budget) { b.log = l }
}

func New(ceiling int, policy ResetPolicy, opts ...Option) *Budget {
	b := &Budget{
		ceiling: ceiling,
		policy:  policy,
		loc:     time.UTC,
		now:     time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	if b.log == nil {
		b.log = logger.With("budget")
	}
	b.resetAt = b.nextReset(b.now())
	return b
}

// Take reserves one call. It returns ErrExhausted without reserving when
// the ceiling has been reached. The first refusal of a period reports
// first=true so callers can raise a one-off signal.
func (b *Budget) Take() (first bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()

	if b.used >= b.ceiling {
		first = !b.notified
		if first {
			b.notified = true
			b.exhausts++
		}
		return first, ErrExhausted
	}
	b.used++
	return false, nil
}

// Refund gives back a call reserved by Take that never reached the provider.
func (b *Budget) Refund() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used > 0 {
		b.used--
	}
}

// Exhausted reports whether the next Take would be refused.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkReset()
	return b.used >= b.ceiling
}

func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkReset()
	return b.used
}

func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkReset()
	return b.ceiling - b.used
}

// Stats is a point-in-time view for monitoring.
type Stats struct {
	Used      int       `json:"used"`
	Ceiling   int       `json:"ceiling"`
	Policy    string    `json:"policy"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
	Exhausted int       `json:"times_exhausted"`
}

func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkReset()
	return Stats{
		Used:      b.used,
		Ceiling:   b.ceiling,
		Policy:    b.policy.String(),
		ResetAt:   b.resetAt,
		Exhausted: b.exhausts,
	}
}

// checkReset zeroes the counter once the period has rolled over.
// Callers hold b.mu.
func (b *Budget) checkReset() {
	if b.policy == Never {
		return
	}
	now := b.now()
	if now.Before(b.resetAt) {
		return
	}
	b.log.Info("resetting news API budget", "used", b.used, "ceiling", b.ceiling)
	b.used = 0
	b.notified = false
	b.resetAt = b.nextReset(now)
}

func (b *Budget) nextReset(now time.Time) time.Time {
	if b.policy == Never {
		return time.Time{}
	}
	t := now.In(b.loc)
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, b.loc)
}
