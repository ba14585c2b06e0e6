// Package storage keeps the set of article titles that were already posted.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Record is one posted article.
type Record struct {
	Title    string    `json:"title"`
	Link     string    `json:"link"`
	Category string    `json:"category"`
	Source   string    `json:"source"`
	PostID   string    `json:"post_id"`
	PostedAt time.Time `json:"posted_at"`
}

// TitleStore is the dedup set. Titles are matched exactly.
type TitleStore interface {
	Contains(ctx context.Context, title string) (bool, error)
	Add(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend     string        // memory | file | sqlite | postgres
	Path        string        // file and sqlite
	DatabaseURL string        // postgres
	TTL         time.Duration // 0 keeps titles forever
}

// Open builds the configured backend.
func Open(ctx context.Context, opts Options) (TitleStore, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(opts.TTL), nil
	case "file":
		fs := NewFileStore(opts.Path, opts.TTL)
		if err := fs.Load(); err != nil {
			return nil, err
		}
		return fs, nil
	case "sqlite":
		return OpenSQLite(ctx, opts.Path, opts.TTL)
	case "postgres":
		return OpenPostgres(ctx, opts.DatabaseURL, opts.TTL)
	}
	return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
}

func cutoff(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(-ttl)
}
