// Package engage follows the people who interacted with a post.
package engage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/twitter"
)

// Account is one linked account as the follower uses it.
// *twitter.Client satisfies it.
type Account interface {
	LikingUsers(ctx context.Context, postID string) ([]twitter.User, error)
	RetweetedBy(ctx context.Context, postID string) ([]twitter.User, error)
	Replies(ctx context.Context, conversationID string) ([]twitter.Tweet, error)
	Follow(ctx context.Context, targetID string) error
	UserID() string
}

type step int

const (
	likers step = iota
	reposters
	repliers
)

func (s step) String() string {
	return [...]string{"likers", "reposters", "repliers"}[s]
}

// Report summarizes one follow-up pass.
type Report struct {
	Candidates int
	Follows    int
	Failures   int
	StepErrors []error
}

type Option func(*Follower)

// WithDedup follows each user at most once per account and pass.
func WithDedup(on bool) Option { return func(f *Follower) { f.dedup = on } }

// WithInterval paces follow requests to one per d.
func WithInterval(d time.Duration) Option {
	return func(f *Follower) {
		if d <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(f *Follower) { f.metrics = m } }

type Follower struct {
	accounts [2]Account
	dedup    bool
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func New(a, b Account, opts ...Option) *Follower {
	f := &Follower{
		accounts: [2]Account{a, b},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		metrics:  metrics.Global,
		log:      logger.With("engage"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func accountName(i int) string { return fmt.Sprintf("account%d", i+1) }

// OnPostSettled enumerates likers, reposters and reply authors of postID
// as seen by each account, then has both accounts follow every one of
// them. A failing lookup or follow is logged and counted; the rest of the
// pass goes on.
func (f *Follower) OnPostSettled(ctx context.Context, postID string) Report {
	f.metrics.IncrementFollowUpsRun()
	f.log.Info("follow-up pass started", "post_id", postID)

	candidates, stepErrs := f.enumerate(ctx, postID)
	rep := Report{Candidates: len(candidates), StepErrors: stepErrs}

	var seen [2]map[string]bool
	for i := range seen {
		seen[i] = make(map[string]bool)
	}

	for _, id := range candidates {
		for i, acct := range f.accounts {
			if id == "" || id == acct.UserID() {
				continue
			}
			if f.dedup {
				if seen[i][id] {
					continue
				}
				seen[i][id] = true
			}
			if err := f.limiter.Wait(ctx); err != nil {
				f.log.Warn("follow-up pass interrupted", "post_id", postID, "error", err)
				return rep
			}
			if err := acct.Follow(ctx, id); err != nil {
				rep.Failures++
				f.metrics.IncrementFollowFailures()
				if reset, ok := twitter.IsRateLimited(err); ok {
					f.log.Warn("follow rate limited", "account", accountName(i), "user_id", id, "reset", reset)
				} else {
					f.log.Error("error following user", "account", accountName(i), "user_id", id, "error", err)
				}
				continue
			}
			rep.Follows++
			f.metrics.IncrementFollowsSent()
			f.log.Info("followed user", "account", accountName(i), "user_id", id)
		}
	}

	f.log.Info("follow-up pass finished", "post_id", postID,
		"candidates", rep.Candidates, "follows", rep.Follows, "failures", rep.Failures, "step_errors", len(rep.StepErrors))
	return rep
}

// enumerate runs the six lookups concurrently and returns the user ids in
// a fixed order: likers, reposters, repliers, each as seen by account 1
// then account 2.
func (f *Follower) enumerate(ctx context.Context, postID string) ([]string, []error) {
	const steps = 3
	var (
		ids  [steps][2][]string
		errs [steps][2]error
		g    errgroup.Group
	)
	for s := step(0); s < steps; s++ {
		for i, acct := range f.accounts {
			g.Go(func() error {
				ids[s][i], errs[s][i] = lookup(ctx, acct, s, postID)
				return nil
			})
		}
	}
	_ = g.Wait()

	var out []string
	var stepErrs []error
	for s := step(0); s < steps; s++ {
		for i := range f.accounts {
			if err := errs[s][i]; err != nil {
				f.metrics.IncrementEngagementErrors()
				f.log.Error("engagement lookup failed", "step", s, "account", accountName(i), "post_id", postID, "error", err)
				stepErrs = append(stepErrs, fmt.Errorf("%s/%s: %w", accountName(i), s, err))
				continue
			}
			out = append(out, ids[s][i]...)
		}
	}
	return out, stepErrs
}

func lookup(ctx context.Context, acct Account, s step, postID string) ([]string, error) {
	switch s {
	case likers, reposters:
		fetch := acct.LikingUsers
		if s == reposters {
			fetch = acct.RetweetedBy
		}
		users, err := fetch(ctx, postID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		return ids, nil
	default:
		tweets, err := acct.Replies(ctx, postID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(tweets))
		for _, t := range tweets {
			ids = append(ids, t.AuthorID)
		}
		return ids, nil
	}
}
