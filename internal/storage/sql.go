package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/deusflow/newsbot/internal/logger"
)

// SQLStore keeps posted titles in sqlite or postgres. posted_at is unix
// seconds so both engines compare it the same way.
type SQLStore struct {
	db      *sql.DB
	dialect string
	ttl     time.Duration
	now     func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS posted_titles (
	title     TEXT PRIMARY KEY,
	link      TEXT NOT NULL,
	category  TEXT NOT NULL DEFAULT '',
	source    TEXT NOT NULL DEFAULT '',
	post_id   TEXT NOT NULL DEFAULT '',
	posted_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posted_titles_posted_at ON posted_titles(posted_at);
`

// OpenSQLite opens (creating when needed) a sqlite database file.
func OpenSQLite(ctx context.Context, path string, ttl time.Duration) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, "sqlite", ttl)
}

// OpenPostgres connects with a lib/pq connection string.
func OpenPostgres(ctx context.Context, dsn string, ttl time.Duration) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return newSQLStore(ctx, db, "postgres", ttl)
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect string, ttl time.Duration) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect, ttl: ttl, now: time.Now}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := s.Cleanup(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("posted title store ready", "dialect", dialect)
	return s, nil
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) cutoffUnix() int64 {
	c := cutoff(s.now(), s.ttl)
	if c.IsZero() {
		return 0
	}
	return c.Unix()
}

func (s *SQLStore) Contains(ctx context.Context, title string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM posted_titles WHERE title = ? AND posted_at > ?`),
		title, s.cutoffUnix()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking posted title: %w", err)
	}
	return count > 0, nil
}

func (s *SQLStore) Add(ctx context.Context, rec Record) error {
	if rec.PostedAt.IsZero() {
		rec.PostedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO posted_titles (title, link, category, source, post_id, posted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (title) DO UPDATE SET
			link = excluded.link,
			category = excluded.category,
			source = excluded.source,
			post_id = excluded.post_id,
			posted_at = excluded.posted_at`),
		rec.Title, rec.Link, rec.Category, rec.Source, rec.PostID, rec.PostedAt.Unix())
	if err != nil {
		return fmt.Errorf("marking title posted: %w", err)
	}
	return nil
}

func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT title, link, category, source, post_id, posted_at
		FROM posted_titles
		WHERE posted_at > ?
		ORDER BY posted_at DESC
		LIMIT ?`), s.cutoffUnix(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent titles: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ts int64
		if err := rows.Scan(&r.Title, &r.Link, &r.Category, &r.Source, &r.PostID, &ts); err != nil {
			return nil, fmt.Errorf("scanning title: %w", err)
		}
		r.PostedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM posted_titles WHERE posted_at > ?`), s.cutoffUnix()).Scan(&n)
	return n, err
}

// Cleanup deletes titles older than the TTL.
func (s *SQLStore) Cleanup(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM posted_titles WHERE posted_at <= ?`), s.cutoffUnix())
	if err != nil {
		return fmt.Errorf("cleaning posted titles: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logger.Info("expired posted titles", "count", n)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
