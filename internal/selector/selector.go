// Package selector runs one posting cycle: walk the rotation, pick the
// first article not posted before, publish it and remember its title.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/newsbot/internal/format"
	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/news"
	"github.com/deusflow/newsbot/internal/publish"
	"github.com/deusflow/newsbot/internal/rotation"
	"github.com/deusflow/newsbot/internal/storage"
)

// Publisher posts text to every linked account.
type Publisher interface {
	Publish(ctx context.Context, text string) publish.Outcome
}

// Fitter turns an article into post text within the platform limit.
type Fitter interface {
	Text(ctx context.Context, a news.Article) (string, error)
}

// Enricher recovers missing article fields from the article page.
type Enricher interface {
	Enrich(ctx context.Context, a news.Article) (news.Article, error)
}

// Result describes one SelectNext call. Found is false when the whole
// rotation had nothing new.
type Result struct {
	Pair    rotation.Pair
	Article news.Article
	Text    string
	Outcome publish.Outcome
	Found   bool
	Posted  bool
}

// PostID is the id the follow-up pass works on.
func (r Result) PostID() string { return r.Outcome.PrimaryID() }

type Option func(*Selector)

// WithEnricher enables title recovery for articles without a title.
func WithEnricher(e Enricher) Option { return func(s *Selector) { s.enricher = e } }

// WithPolicy sets the rule deciding whether an outcome counts as posted.
func WithPolicy(p publish.Policy) Option { return func(s *Selector) { s.policy = p } }

// OnPosted is called with the primary post id after a title is recorded.
func OnPosted(fn func(ctx context.Context, postID string)) Option {
	return func(s *Selector) { s.onPosted = fn }
}

func WithMetrics(m *metrics.Metrics) Option { return func(s *Selector) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Selector) { s.now = now } }

// Selector owns the rotation cursor, the posted-title set and, through
// the source, the call budget. One mutex serializes all of it.
type Selector struct {
	mu       sync.Mutex
	cursor   *rotation.Cursor
	source   news.Source
	store    storage.TitleStore
	fitter   Fitter
	pub      Publisher
	policy   publish.Policy
	enricher Enricher
	onPosted func(ctx context.Context, postID string)
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func New(cursor *rotation.Cursor, src news.Source, store storage.TitleStore, fitter Fitter, pub Publisher, opts ...Option) *Selector {
	s := &Selector{
		cursor:  cursor,
		source:  src,
		store:   store,
		fitter:  fitter,
		pub:     pub,
		policy:  publish.FirstAccount,
		metrics: metrics.Global,
		log:     logger.With("selector"),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Position is the cursor index the next cycle starts from.
func (s *Selector) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.Position()
}

// SelectNext runs one cycle. Publish failures are reported in the
// Result, not as an error; errors come from the title store or ctx.
func (s *Selector) SelectNext(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.find(ctx)
	if err != nil || !res.Found {
		if err == nil {
			s.log.Info("no new articles available")
		}
		return res, err
	}
	a := res.Article

	s.log.Info("publishing", "pair", res.Pair, "title", a.Title, "chars", format.RuneLen(res.Text), "weight", format.Weight(res.Text))
	res.Outcome = s.pub.Publish(ctx, res.Text)
	res.Posted = s.policy.Posted(res.Outcome)
	if !res.Posted {
		s.log.Warn("article not posted", "title", a.Title, "outcome", res.Outcome.Kind, "error", res.Outcome.Err())
		return res, nil
	}
	if res.Outcome.Kind == publish.PartialFailure {
		s.log.Warn("posted on one account only", "failed", res.Outcome.Failed, "error", res.Outcome.Err())
	}

	s.metrics.RecordPost()
	rec := storage.Record{
		Title:    a.Title,
		Link:     a.Link,
		Category: a.Category,
		Source:   a.SourceID,
		PostID:   res.PostID(),
		PostedAt: s.now(),
	}
	// the post is live whatever the store says, so its follow-up is
	// scheduled first
	if s.onPosted != nil {
		s.onPosted(ctx, res.PostID())
	}
	if err := s.store.Add(ctx, rec); err != nil {
		return res, fmt.Errorf("selector: record title: %w", err)
	}
	return res, nil
}

// find walks at most one full rotation. The cursor moves before each
// fetch so the next cycle starts after the last pair tried.
func (s *Selector) find(ctx context.Context) (Result, error) {
	for i := 0; i < s.cursor.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		pair := s.cursor.Next()
		for _, a := range s.source.Fetch(ctx, pair.Region, pair.Category) {
			a, ok := s.usable(ctx, a)
			if !ok {
				continue
			}
			seen, err := s.store.Contains(ctx, a.Title)
			if err != nil {
				return Result{}, fmt.Errorf("selector: title lookup: %w", err)
			}
			if seen {
				s.metrics.IncrementDuplicatesSkipped()
				s.log.Debug("already posted", "title", a.Title)
				continue
			}
			text, err := s.fitter.Text(ctx, a)
			if err != nil {
				s.metrics.IncrementArticlesSkipped()
				s.log.Warn("skipping article that cannot be formatted", "title", a.Title, "error", err)
				continue
			}
			return Result{Pair: pair, Article: a, Text: text, Found: true}, nil
		}
	}
	return Result{}, nil
}

func (s *Selector) usable(ctx context.Context, a news.Article) (news.Article, bool) {
	if strings.TrimSpace(a.Title) == "" && a.Link != "" && s.enricher != nil {
		b, err := s.enricher.Enrich(ctx, a)
		if err != nil {
			s.log.Warn("title recovery failed", "link", a.Link, "error", err)
		} else {
			a = b
		}
	}
	a.Title = strings.TrimSpace(a.Title)
	if !a.Usable() {
		s.metrics.IncrementArticlesSkipped()
		s.log.Warn("skipping article without title or link", "link", a.Link, "source", a.SourceID)
		return a, false
	}
	return a, true
}

// Draft is one candidate shown by Preview.
type Draft struct {
	Article   news.Article
	Text      string
	Duplicate bool
	Err       error
}

// Preview fetches the next pair and formats every article without
// publishing or recording anything. The fetch is charged as usual.
func (s *Selector) Preview(ctx context.Context) (rotation.Pair, []Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := s.cursor.Next()
	var drafts []Draft
	for _, a := range s.source.Fetch(ctx, pair.Region, pair.Category) {
		a, ok := s.usable(ctx, a)
		if !ok {
			drafts = append(drafts, Draft{Article: a, Err: format.ErrUnusable})
			continue
		}
		seen, err := s.store.Contains(ctx, a.Title)
		if err != nil {
			return pair, drafts, err
		}
		d := Draft{Article: a, Duplicate: seen}
		d.Text, d.Err = s.fitter.Text(ctx, a)
		drafts = append(drafts, d)
	}
	return pair, drafts, nil
}
