package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(id string, at time.Time) stroke.Record {
	return stroke.Record{ID: id, OwnerID: "o-" + id, CreatedAt: at, Data: json.RawMessage(`{"p":[[1,2],[3,4]]}`)}
}

func TestSQLite_InsertAndRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.InsertStroke(ctx, rec(id, base.Add(time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.InsertStroke(ctx, rec("a", base)); err == nil {
		t.Error("duplicate id accepted")
	}

	got, err := s.RecentStrokes(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("RecentStrokes(2) = %+v", got)
	}
	if !got[0].CreatedAt.Equal(base.Add(2*time.Millisecond)) || got[0].OwnerID != "o-c" {
		t.Errorf("row = %+v", got[0])
	}
	if p, err := stroke.ParsePayload(got[0].Data); err != nil || len(p.P) != 2 {
		t.Errorf("payload = %v, %v", p, err)
	}
}

func TestSQLite_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.InsertStroke(ctx, rec("a", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteStroke(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteStroke(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteStroke() = %v, want ErrNotFound", err)
	}
}

func TestSQLite_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	for _, r := range []stroke.Record{rec("old1", now.Add(-10*time.Second)), rec("old2", now.Add(-6*time.Second)), rec("new", now)} {
		if err := s.InsertStroke(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.DeleteOlderThan(ctx, now.Add(-5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("DeleteOlderThan() = %v, want old1 and old2", ids)
	}
	left, _ := s.RecentStrokes(ctx, 0)
	if len(left) != 1 || left[0].ID != "new" {
		t.Errorf("remaining = %+v", left)
	}
	ids, err = s.DeleteOlderThan(ctx, now.Add(-5*time.Second))
	if err != nil || len(ids) != 0 {
		t.Errorf("second DeleteOlderThan() = %v, %v", ids, err)
	}
}

func TestSQLite_Documents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "overlay.sqlite3")
	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadDocument(ctx, "presentation"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadDocument() = %v, want ErrNotFound", err)
	}
	if err := s.SaveDocument(ctx, "presentation", []byte{0, 1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDocument(ctx, "presentation", []byte{3, 4}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	raw, err := s.LoadDocument(ctx, "presentation")
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 2 || raw[0] != 3 || raw[1] != 4 {
		t.Errorf("LoadDocument() = %v, want [3 4]", raw)
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{-1: 50, 0: 50, 10: 10, 500: 500, 501: 500} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestOpen_PicksSQLite(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLite); !ok {
		t.Errorf("Open(:memory:) = %T, want *SQLite", s)
	}
}
