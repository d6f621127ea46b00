package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// Postgres keeps strokes in a jsonb column so the payload stays schema-free.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func OpenPostgres(ctx context.Context, dbUrl string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dbUrl)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	slog.Info("Connected to PostgreSQL successfully.")
	s := &Postgres{pool: pool}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) init(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS strokes (
		id text not null primary key,
		owner_id text not null default '',
		created_at timestamptz not null default now(),
		data jsonb not null
		)`,
		`CREATE INDEX IF NOT EXISTS strokes_created_at ON strokes (created_at)`,
		`CREATE TABLE IF NOT EXISTS documents (
		id text not null primary key,
		content bytea
		)`,
	} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) InsertStroke(ctx context.Context, rec stroke.Record) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO strokes (id, owner_id, created_at, data) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.OwnerID, rec.CreatedAt, string(rec.Data),
	); err != nil {
		return fmt.Errorf("failed to insert stroke: %w", err)
	}
	return nil
}

func (s *Postgres) RecentStrokes(ctx context.Context, limit int) ([]stroke.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, created_at, data::text FROM strokes ORDER BY created_at DESC, id DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stroke.Record, error) {
		var rec stroke.Record
		var data string
		if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.CreatedAt, &data); err != nil {
			return rec, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.Data = []byte(data)
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return out, nil
}

func (s *Postgres) DeleteStroke(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM strokes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stroke: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `DELETE FROM strokes WHERE created_at < $1 RETURNING id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired strokes: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return ids, nil
}

func (s *Postgres) LoadDocument(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	if err := s.pool.QueryRow(ctx, `SELECT content FROM documents WHERE id = $1`, id).Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	return content, nil
}

func (s *Postgres) SaveDocument(ctx context.Context, id string, content []byte) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, content) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET content = excluded.content`,
		id, content,
	); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}
