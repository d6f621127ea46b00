// Package store persists stroke rows and saved documents. Both backends keep the stroke
// payload as the raw JSON the client sent.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

var ErrNotFound = errors.New("not found")

// MaxLimit caps RecentStrokes.
const MaxLimit = 500

type Store interface {
	InsertStroke(ctx context.Context, rec stroke.Record) error
	// RecentStrokes returns up to limit rows, newest first.
	RecentStrokes(ctx context.Context, limit int) ([]stroke.Record, error)
	// DeleteStroke returns ErrNotFound when no row has id.
	DeleteStroke(ctx context.Context, id string) error
	// DeleteOlderThan removes every row created before cutoff and returns their ids.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
	// LoadDocument returns ErrNotFound for an unknown id.
	LoadDocument(ctx context.Context, id string) ([]byte, error)
	SaveDocument(ctx context.Context, id string, content []byte) error
	Close() error
}

// Open picks a backend from dsn: postgres:// and postgresql:// URLs go to Postgres,
// anything else is a sqlite path.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(ctx, dsn)
	}
	return OpenSQLite(ctx, dsn)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
