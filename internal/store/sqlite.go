// Package store persists crawl sessions to an embedded sqlite database so
// runs can be inspected across invocations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/webharvest/imgcrawler/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	target        TEXT NOT NULL,
	started_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP,
	pages_visited INTEGER NOT NULL DEFAULT 0,
	assets_found  INTEGER NOT NULL DEFAULT 0,
	assets_saved  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS pages (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	url        TEXT NOT NULL,
	PRIMARY KEY (session_id, url)
);
CREATE TABLE IF NOT EXISTS assets (
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	source_url   TEXT NOT NULL,
	saved_path   TEXT NOT NULL,
	byte_size    INTEGER NOT NULL,
	content_type TEXT NOT NULL,
	extension    TEXT NOT NULL,
	PRIMARY KEY (session_id, source_url)
);
`

// Store wraps the sqlite connection.
type Store struct {
	db *sql.DB
}

// Session summarizes one recorded run.
type Session struct {
	ID           string
	Kind         string
	Target       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	PagesVisited int
	AssetsFound  int
	AssetsSaved  int
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// BeginSession records the start of a crawl or search run.
func (s *Store) BeginSession(ctx context.Context, id, kind, target string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, kind, target, started_at) VALUES (?, ?, ?, ?)`,
		id, kind, target, startedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FinishSession records the result of a run: counters on the session row plus
// one row per visited page and per saved asset, in a single transaction.
func (s *Store) FinishSession(ctx context.Context, id string, res crawler.Result, finishedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET finished_at = ?, pages_visited = ?, assets_found = ?, assets_saved = ?
		 WHERE id = ?`,
		finishedAt.UTC(), len(res.VisitedPages), res.TotalAssetsFound, len(res.Downloaded), id,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	for _, page := range res.VisitedPages {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO pages (session_id, url) VALUES (?, ?)`,
			id, page,
		); err != nil {
			return fmt.Errorf("insert page: %w", err)
		}
	}
	for _, asset := range res.Downloaded {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO assets
			 (session_id, source_url, saved_path, byte_size, content_type, extension)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, asset.SourceURL, asset.SavedPath, asset.ByteSize, asset.ContentType, asset.Extension,
		); err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, target, started_at, finished_at, pages_visited, assets_found, assets_saved
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Session
	for rows.Next() {
		var sess Session
		var finished sql.NullTime
		if err := rows.Scan(
			&sess.ID, &sess.Kind, &sess.Target, &sess.StartedAt, &finished,
			&sess.PagesVisited, &sess.AssetsFound, &sess.AssetsSaved,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			sess.FinishedAt = &t
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
