// Package news defines the article model and the budget-gated news source.
package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deusflow/newsbot/internal/budget"
	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/metrics"
)

// Article is one candidate story. Title is its identity for dedup.
type Article struct {
	Title       string
	Link        string
	SourceID    string
	Category    string
	Region      string
	Description string
	ImageURL    string
	Published   time.Time
}

// Usable reports whether the article carries the fields a post needs.
func (a Article) Usable() bool {
	return strings.TrimSpace(a.Title) != "" && strings.TrimSpace(a.Link) != ""
}

// Provider fetches one page of articles for a (region, category) pair.
type Provider interface {
	Fetch(ctx context.Context, region, category string) ([]Article, error)
}

// Source is the contract the selector consumes: failures and budget
// refusals both come back as an empty page.
type Source interface {
	Fetch(ctx context.Context, region, category string) []Article
}

// FetchError describes a failed provider call. Reached is true when the
// provider answered (any status), which means quota was consumed.
type FetchError struct {
	Region   string
	Category string
	Reached  bool
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s/%s: status %d: %v", e.Region, e.Category, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s/%s: %v", e.Region, e.Category, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Gate puts a call budget in front of a Provider.
type Gate struct {
	provider    Provider
	budget      *budget.Budget
	metrics     *metrics.Metrics
	log         *slog.Logger
	onExhausted func()
}

type GateOption func(*Gate)

// OnExhausted registers a hook called once per budget period when the
// ceiling is first hit.
func OnExhausted(fn func()) GateOption {
	return func(g *Gate) { g.onExhausted = fn }
}

func WithMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.log = l }
}

func NewGate(p Provider, b *budget.Budget, opts ...GateOption) *Gate {
	g := &Gate{provider: p, budget: b, metrics: metrics.Global}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = logger.With("news")
	}
	return g
}

// Fetch returns the provider's page verbatim, or nothing when the budget
// is spent or the call failed. A call is charged only when it reached
// the provider.
func (g *Gate) Fetch(ctx context.Context, region, category string) []Article {
	first, err := g.budget.Take()
	if errors.Is(err, budget.ErrExhausted) {
		g.log.Warn("reached news API request limit", "used", g.budget.Used(), "region", region, "category", category)
		if first {
			g.metrics.IncrementBudgetExhausted()
			if g.onExhausted != nil {
				g.onExhausted()
			}
		}
		return nil
	}

	g.log.Info("fetching latest news", "region", region, "category", category)
	articles, err := g.provider.Fetch(ctx, region, category)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Reached {
			g.budget.Refund()
		}
		g.metrics.IncrementFetchFailures()
		g.log.Error("error fetching news", "region", region, "category", category, "error", err)
		return nil
	}

	g.metrics.IncrementNewsFetches()
	g.log.Info("news fetched", "region", region, "category", category, "count", len(articles), "budget_used", g.budget.Used())
	return articles
}
