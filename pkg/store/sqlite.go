package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

type SQLite struct {
	database *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the tables exist.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	slog.Info("Opening database", "path", path)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open: %w", err)
	}
	// one connection: sqlite serializes writers anyway, and :memory: is per connection
	db.SetMaxOpenConns(1)
	s := &SQLite{database: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init(ctx context.Context) error {
	if _, err := s.database.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS strokes (
		id text not null primary key,
		owner_id text not null default '',
		created_at integer not null,
		data text not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create strokes: %w", err)
	}
	if _, err := s.database.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS strokes_created_at ON strokes (created_at)`,
	); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if _, err := s.database.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS documents (
		id text not null primary key,
		content text
		)`,
	); err != nil {
		return fmt.Errorf("failed to create documents: %w", err)
	}
	slog.Info("Ensured initial tables exist")
	return nil
}

func (s *SQLite) Close() error {
	return s.database.Close()
}

func (s *SQLite) InsertStroke(ctx context.Context, rec stroke.Record) error {
	if _, err := s.database.ExecContext(ctx,
		`INSERT INTO strokes (id, owner_id, created_at, data) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.CreatedAt.UnixNano(), string(rec.Data),
	); err != nil {
		return fmt.Errorf("failed to insert stroke: %w", err)
	}
	return nil
}

func (s *SQLite) RecentStrokes(ctx context.Context, limit int) ([]stroke.Record, error) {
	res, err := s.database.QueryContext(ctx,
		`SELECT id, owner_id, created_at, data FROM strokes ORDER BY created_at DESC, id DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func(res *sql.Rows) {
		if err := res.Close(); err != nil {
			slog.Error("failed to close rows", "err", err)
		}
	}(res)

	out := make([]stroke.Record, 0)
	for res.Next() {
		var rec stroke.Record
		var createdAt int64
		var data string
		if err := res.Scan(&rec.ID, &rec.OwnerID, &createdAt, &data); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		rec.Data = []byte(data)
		out = append(out, rec)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate: %w", err)
	}
	return out, nil
}

func (s *SQLite) DeleteStroke(ctx context.Context, id string) error {
	res, err := s.database.ExecContext(ctx, `DELETE FROM strokes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stroke: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	res, err := s.database.QueryContext(ctx, `DELETE FROM strokes WHERE created_at < ? RETURNING id`, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired strokes: %w", err)
	}
	defer res.Close()
	var ids []string
	for res.Next() {
		var id string
		if err := res.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate: %w", err)
	}
	return ids, nil
}

func (s *SQLite) LoadDocument(ctx context.Context, id string) ([]byte, error) {
	var rawSave string
	if err := s.database.QueryRowContext(ctx, `SELECT content FROM documents WHERE id = ?`, id).Scan(&rawSave); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(rawSave)
	if err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	return raw, nil
}

func (s *SQLite) SaveDocument(ctx context.Context, id string, content []byte) error {
	if _, err := s.database.ExecContext(ctx,
		`INSERT INTO documents (id, content) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET content = excluded.content`,
		id, base64.StdEncoding.EncodeToString(content),
	); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}
