// Package app wires the configured components together and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/deusflow/newsbot/internal/budget"
	"github.com/deusflow/newsbot/internal/config"
	"github.com/deusflow/newsbot/internal/engage"
	"github.com/deusflow/newsbot/internal/format"
	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/news"
	"github.com/deusflow/newsbot/internal/newsdata"
	"github.com/deusflow/newsbot/internal/publish"
	"github.com/deusflow/newsbot/internal/retry"
	"github.com/deusflow/newsbot/internal/rotation"
	"github.com/deusflow/newsbot/internal/rss"
	"github.com/deusflow/newsbot/internal/schedule"
	"github.com/deusflow/newsbot/internal/scraper"
	"github.com/deusflow/newsbot/internal/selector"
	"github.com/deusflow/newsbot/internal/shorten"
	"github.com/deusflow/newsbot/internal/storage"
	"github.com/deusflow/newsbot/internal/telegram"
	"github.com/deusflow/newsbot/internal/twitter"
)

type App struct {
	cfg *config.Config

	Accounts  [2]*twitter.Client
	Budget    *budget.Budget
	Store     storage.TitleStore
	Selector  *selector.Selector
	Follower  *engage.Follower
	Followups *schedule.Queue
	Scheduler *schedule.Scheduler
	Alerts    *telegram.Notifier

	closers []io.Closer
}

// Build constructs every component from cfg. ctx bounds the follow-up
// tasks and the store connection.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg, Alerts: telegram.New(cfg.TelegramToken, cfg.TelegramChatID)}

	pairs, provider, err := newsProvider(cfg)
	if err != nil {
		return nil, err
	}
	cursor, err := rotation.NewCursor(pairs)
	if err != nil {
		return nil, err
	}

	policy, err := budget.ParsePolicy(cfg.BudgetReset)
	if err != nil {
		return nil, err
	}
	a.Budget = budget.New(cfg.DailyLimit, policy, budget.WithLocation(cfg.Location()))
	gate := news.NewGate(provider, a.Budget, news.OnExhausted(func() {
		a.Alerts.Notifyf(ctx, "newsbot: news API budget of %d calls spent, next reset %s",
			cfg.DailyLimit, a.Budget.Stats().ResetAt.Format(time.RFC3339))
	}))

	a.Store, err = storage.Open(ctx, storage.Options{
		Backend:     cfg.StoreBackend,
		Path:        cfg.StorePath,
		DatabaseURL: cfg.DatabaseURL,
		TTL:         cfg.PostedTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("open title store: %w", err)
	}
	a.closers = append(a.closers, a.Store)

	sh, err := a.shortener(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	fitter := shorten.NewFitter(format.New(cfg.PostSuffix), sh, cfg.PostMaxRunes)

	for i, acct := range cfg.Accounts {
		c := twitter.New(fmt.Sprintf("account%d", i+1), twitter.Credentials{
			AppKey:       acct.AppKey,
			AppSecret:    acct.AppSecret,
			AccessToken:  acct.AccessToken,
			AccessSecret: acct.AccessSecret,
		}, cfg.TwitterBaseURL, cfg.RequestTimeout)
		c.SetUserID(acct.UserID)
		a.Accounts[i] = c
	}

	postedPolicy, err := publish.ParsePolicy(cfg.PostedPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}
	dual := publish.NewDual(a.Accounts[0], a.Accounts[1], metrics.Global)
	dual.Policy = postedPolicy
	dual.OnRateLimit = func(acct publish.Account, reset time.Time) {
		a.Alerts.Notifyf(ctx, "newsbot: %s rate limited until %s", acct, reset.Format(time.RFC3339))
	}

	a.Follower = engage.New(a.Accounts[0], a.Accounts[1],
		engage.WithDedup(cfg.FollowDedup),
		engage.WithInterval(cfg.FollowEvery),
	)
	a.Followups = schedule.NewQueue(ctx, func(ctx context.Context, postID string) {
		a.Follower.OnPostSettled(ctx, postID)
	})

	opts := []selector.Option{
		selector.WithPolicy(postedPolicy),
		selector.OnPosted(func(_ context.Context, postID string) {
			if _, err := a.Followups.Schedule(postID, cfg.FollowDelay); err != nil {
				logger.Warn("follow-up not scheduled", "post_id", postID, "error", err)
			}
		}),
	}
	if cfg.RecoverTitles {
		opts = append(opts, selector.WithEnricher(scraper.New(cfg.RequestTimeout)))
	}
	a.Selector = selector.New(cursor, gate, a.Store, fitter, dual, opts...)

	a.Scheduler = schedule.New(cfg.PostInterval, func(ctx context.Context) error {
		_, err := a.Selector.SelectNext(ctx)
		return err
	}, metrics.Global)

	return a, nil
}

func newsProvider(cfg *config.Config) ([]rotation.Pair, news.Provider, error) {
	var file *rotation.File
	if cfg.RotationFile != "" {
		f, err := rotation.LoadFile(cfg.RotationFile)
		if err != nil {
			return nil, nil, err
		}
		file = f
	}

	pairs := rotation.Default()
	if file != nil {
		pairs = file.Pairs()
	}

	switch cfg.NewsProvider {
	case "rss":
		if file == nil {
			return nil, nil, errors.New("rss provider needs a rotation file")
		}
		return pairs, rss.NewFeedSource(file.Feeds(), cfg.RequestTimeout), nil
	default:
		return pairs, newsdata.New(cfg.NewsAPIBaseURL, cfg.NewsAPIKey, cfg.RequestTimeout), nil
	}
}

func (a *App) shortener(ctx context.Context) (shorten.Shortener, error) {
	switch a.cfg.Shortener {
	case "gemini":
		g, err := shorten.NewGemini(ctx, a.cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		a.closers = append(a.closers, g)
		return g, nil
	case "openai":
		return shorten.NewOpenAI(a.cfg.OpenAIAPIKey), nil
	}
	return nil, nil
}

// Login checks both accounts' credentials and resolves their user ids.
func (a *App) Login(ctx context.Context) error {
	for _, c := range a.Accounts {
		var me twitter.User
		err := retry.Do(ctx, retry.Startup, func(ctx context.Context) error {
			u, err := c.Me(ctx)
			if err == nil {
				me = u
				return nil
			}
			var apiErr *twitter.APIError
			if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Status != 429 {
				if apiErr.Forbidden() {
					logger.Error("client forbidden: attach the app to a project in the X developer portal", "account", c.Label)
				}
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("%s login: %w", c.Label, err)
		}
		logger.Info("logged in", "account", c.Label, "username", me.Username, "user_id", c.UserID())
	}
	return nil
}

// Run logs in, then posts on schedule until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Login(ctx); err != nil {
		return err
	}
	if a.cfg.Monitoring {
		go serveMonitoring(ctx, a.cfg.MonitoringPort)
	}
	a.Scheduler.Run(ctx)
	a.shutdown()
	return nil
}

// Once runs a single cycle. With waitFollow the scheduled follow-up is
// awaited instead of dropped.
func (a *App) Once(ctx context.Context, waitFollow bool) (selector.Result, error) {
	if err := a.Login(ctx); err != nil {
		return selector.Result{}, err
	}
	res, err := a.Selector.SelectNext(ctx)
	if waitFollow && res.Posted {
		logger.Info("waiting for follow-up", "delay", a.cfg.FollowDelay)
		done := make(chan struct{})
		go func() {
			a.Followups.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	a.shutdown()
	return res, err
}

func (a *App) shutdown() {
	if dropped := a.Followups.Shutdown(); len(dropped) > 0 {
		logger.Warn("follow-ups dropped", "count", len(dropped))
	}
	a.Followups.Wait()
}

// Close releases the store and model clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
