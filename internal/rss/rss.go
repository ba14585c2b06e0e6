// Package rss serves rotation pairs from RSS/Atom feeds instead of NewsData.io.
package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/news"
	"github.com/deusflow/newsbot/internal/rotation"
)

// FeedSource fetches every feed configured for a pair and merges the
// items in feed order.
type FeedSource struct {
	feeds  map[rotation.Pair][]string
	parser *gofeed.Parser
	log    *slog.Logger
}

var _ news.Provider = (*FeedSource)(nil)

func NewFeedSource(feeds map[rotation.Pair][]string, timeout time.Duration) *FeedSource {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	p.UserAgent = "newsbot/1.0"
	return &FeedSource{feeds: feeds, parser: p, log: logger.With("rss")}
}

func (s *FeedSource) Fetch(ctx context.Context, region, category string) ([]news.Article, error) {
	pair := rotation.Pair{Region: region, Category: category}
	urls := s.feeds[pair]
	if len(urls) == 0 {
		return nil, &news.FetchError{Region: region, Category: category, Err: errors.New("no feeds configured")}
	}

	var (
		articles []news.Article
		reached  bool
		lastErr  error
		ok       int
	)
	for _, u := range urls {
		feed, err := s.parser.ParseURLWithContext(u, ctx)
		if err != nil {
			var he gofeed.HTTPError
			if errors.As(err, &he) {
				reached = true
			}
			lastErr = fmt.Errorf("%s: %w", u, err)
			s.log.Warn("error parsing RSS", "url", u, "error", err)
			continue
		}
		reached = true
		ok++
		articles = append(articles, toArticles(feed, pair)...)
		s.log.Debug("loaded feed", "url", u, "items", len(feed.Items))
	}

	if ok == 0 {
		return nil, &news.FetchError{Region: region, Category: category, Reached: reached, Err: lastErr}
	}
	s.log.Info("processed RSS feeds", "pair", pair.String(), "ok", ok, "total", len(urls))
	return articles, nil
}

func toArticles(feed *gofeed.Feed, pair rotation.Pair) []news.Article {
	out := make([]news.Article, 0, len(feed.Items))
	for _, it := range feed.Items {
		a := news.Article{
			Title:       it.Title,
			Link:        it.Link,
			SourceID:    feed.Title,
			Category:    pair.Category,
			Region:      pair.Region,
			Description: it.Description,
		}
		if it.PublishedParsed != nil {
			a.Published = *it.PublishedParsed
		}
		if it.Image != nil {
			a.ImageURL = it.Image.URL
		}
		out = append(out, a)
	}
	return out
}
