// Package shorten keeps post text inside the platform limit, optionally
// asking a language model for a shorter headline first.
package shorten

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/newsbot/internal/format"
	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/news"
)

// Shortener rewrites a headline to at most maxRunes characters.
type Shortener interface {
	Shorten(ctx context.Context, title string, maxRunes int) (string, error)
	Name() string
}

// Fitter produces post text no heavier than Max.
type Fitter struct {
	Formatter format.Formatter
	Shortener Shortener // optional
	Max       int
	Log       *slog.Logger
}

func NewFitter(f format.Formatter, s Shortener, max int) *Fitter {
	return &Fitter{Formatter: f, Shortener: s, Max: max, Log: logger.With("shorten")}
}

// Text formats a. When the post is too long and a Shortener is set, the
// headline is rewritten once; the formatter's word cut is the fallback.
func (f *Fitter) Text(ctx context.Context, a news.Article) (string, error) {
	text, err := f.Formatter.Format(a)
	if err != nil {
		return "", err
	}
	over := format.Weight(text) - f.Max
	if over <= 0 {
		return text, nil
	}

	if f.Shortener != nil {
		target := utf8.RuneCountInString(a.Title) - over
		if target > 0 {
			short, err := f.Shortener.Shorten(ctx, a.Title, target)
			if err != nil {
				f.Log.Warn("shortener failed, cutting title", "provider", f.Shortener.Name(), "error", err)
			} else if short != "" {
				b := a
				b.Title = short
				if t, err := f.Formatter.Format(b); err == nil && format.Weight(t) <= f.Max {
					f.Log.Info("title shortened", "provider", f.Shortener.Name(), "from", a.Title, "to", short)
					return t, nil
				}
			}
		}
	}

	return f.Formatter.Fit(a, f.Max)
}

func prompt(title string, maxRunes int) string {
	return fmt.Sprintf(`Rewrite this news headline in at most %d characters.
Keep names, numbers and the original language. Do not add hashtags, quotes or commentary.
Reply with the headline only.

Headline: %s`, maxRunes, title)
}

var (
	labelRe      = regexp.MustCompile(`(?i)^(headline|title)\s*:\s*`)
	disclaimerRe = regexp.MustCompile(`(?i)[\(\[]\s*note:[^\)\]]*[\)\]]`)
)

// clean normalizes a model reply into a single headline line.
func clean(reply string) string {
	reply = disclaimerRe.ReplaceAllString(reply, "")
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(strings.ToLower(line), "note:") {
			continue
		}
		line = labelRe.ReplaceAllString(line, "")
		line = strings.Trim(line, "\"'“”*` ")
		return strings.Join(strings.Fields(line), " ")
	}
	return ""
}

// check rejects replies that are empty or still too long.
func check(short string, maxRunes int) (string, error) {
	if short == "" {
		return "", fmt.Errorf("empty reply")
	}
	if n := utf8.RuneCountInString(short); n > maxRunes {
		return "", fmt.Errorf("reply has %d characters, limit %d", n, maxRunes)
	}
	return short, nil
}
