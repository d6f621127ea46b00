package overlay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/channel"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

func record(t *testing.T, id string, at time.Time) stroke.Record {
	t.Helper()
	rec, err := stroke.NewRecord(id, "owner", at, stroke.Payload{P: [][2]int{{100, 100}, {500, 500}}})
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestSession_BacklogReplayedOldestFirst(t *testing.T) {
	ch := channel.NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		ch.Publish(record(t, id, base.Add(time.Duration(i)*time.Second)))
	}

	m, _, _, _ := newTestManager(time.Minute)
	s := StartSession(context.Background(), ch, m, SessionConfig{Limit: 2})
	defer s.Close()

	got := itemIDs(m.Items())
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Items() = %v, want [b c]", got)
	}
	if it := m.Items()[0]; it.Path[0] != (stroke.Point{X: 1, Y: 1}) {
		t.Errorf("decoded path = %v, want to start at {1 1}", it.Path)
	}
}

func TestSession_DuplicateInsertEvent(t *testing.T) {
	ch := channel.NewMemory()
	m, _, _, _ := newTestManager(time.Minute)
	s := StartSession(context.Background(), ch, m, SessionConfig{})
	defer s.Close()

	rec := record(t, "abc", time.Now())
	ch.Publish(rec)
	ch.Publish(rec)

	if got := itemIDs(m.Items()); len(got) != 1 || got[0] != "abc" {
		t.Errorf("Items() = %v, want [abc]", got)
	}
	if m.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", m.Pending())
	}
}

func TestSession_DeleteEvents(t *testing.T) {
	ch := channel.NewMemory()
	m, _, _, _ := newTestManager(time.Minute)
	s := StartSession(context.Background(), ch, m, SessionConfig{})
	defer s.Close()

	ch.Publish(record(t, "a", time.Now()))
	ch.Publish(record(t, "b", time.Now()))
	ch.DeleteByID(context.Background(), "a")
	ch.DeleteByID(context.Background(), "untracked")

	if got := itemIDs(m.Items()); len(got) != 1 || got[0] != "b" {
		t.Errorf("Items() = %v, want [b]", got)
	}
	if m.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", m.Pending())
	}
}

func TestSession_MalformedRecordSkipped(t *testing.T) {
	ch := channel.NewMemory()
	m, _, _, _ := newTestManager(time.Minute)
	s := StartSession(context.Background(), ch, m, SessionConfig{})
	defer s.Close()

	ch.Publish(stroke.Record{ID: "bad", Data: json.RawMessage(`{"p":"nope"}`)})
	ch.Publish(record(t, "good", time.Now()))

	if got := itemIDs(m.Items()); len(got) != 1 || got[0] != "good" {
		t.Errorf("Items() = %v, want [good]", got)
	}
}

func TestSession_ResyncCatchesMissedDelete(t *testing.T) {
	ch := channel.NewMemory()
	m, _, _, j := newTestManager(time.Minute)
	s := StartSession(context.Background(), ch, m, SessionConfig{})
	defer s.Close()

	ch.Publish(record(t, "a", time.Now()))
	ch.Publish(record(t, "b", time.Now()))
	ch.Drop("a")
	ch.Resync()

	if got := itemIDs(m.Items()); len(got) != 1 || got[0] != "b" {
		t.Errorf("Items() = %v, want [b]", got)
	}
	if alive := s.Alive(); len(alive) != 1 || alive[0] != "b" {
		t.Errorf("Alive() = %v, want [b]", alive)
	}
	last := j.Entries()[len(j.Entries())-1]
	if last.ID != "a" || last.Cause != "reconciled" {
		t.Errorf("last transition = %+v", last)
	}
}

// slowChannel lets a test deliver events while the backlog fetch is in flight.
type slowChannel struct {
	*channel.Memory
	during func()
}

func (c *slowChannel) FetchRecent(ctx context.Context, limit int) ([]stroke.Record, error) {
	recs, err := c.Memory.FetchRecent(ctx, limit)
	if c.during != nil {
		during := c.during
		c.during = nil
		during()
	}
	return recs, err
}

func TestSession_EventsRacingBacklog(t *testing.T) {
	mem := channel.NewMemory()
	mem.Publish(record(t, "old", time.Now().Add(-time.Second)))
	mem.Publish(record(t, "doomed", time.Now().Add(-time.Second)))
	ch := &slowChannel{Memory: mem}
	ch.during = func() {
		mem.Publish(record(t, "new", time.Now()))
		mem.DeleteByID(context.Background(), "doomed")
	}

	m, _, _, _ := newTestManager(time.Minute)
	s := StartSession(context.Background(), ch, m, SessionConfig{})
	defer s.Close()

	got := map[string]bool{}
	for _, id := range itemIDs(m.Items()) {
		if got[id] {
			t.Fatalf("duplicate item %s", id)
		}
		got[id] = true
	}
	if !got["old"] || !got["new"] || got["doomed"] || len(got) != 2 {
		t.Errorf("Items() = %v, want old and new", itemIDs(m.Items()))
	}
}

func TestSession_CloseTearsDown(t *testing.T) {
	ch := channel.NewMemory()
	m, clock, _, _ := newTestManager(time.Minute)
	s := StartSession(context.Background(), ch, m, SessionConfig{})
	ch.Publish(record(t, "a", time.Now()))

	s.Close()
	s.Close()

	if ins, dels := ch.Subscribers(); ins != 0 || dels != 0 {
		t.Errorf("subscribers after Close = %d/%d, want 0/0", ins, dels)
	}
	if clock.active() != 0 {
		t.Errorf("active timers after Close = %d, want 0", clock.active())
	}
	ch.Publish(record(t, "b", time.Now()))
	if got := itemIDs(m.Items()); len(got) != 1 {
		t.Errorf("Items() = %v, want only a", got)
	}
}

func TestSession_FetchFailureIsNotFatal(t *testing.T) {
	ch := channel.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, _, _, _ := newTestManager(time.Minute)
	s := StartSession(ctx, ch, m, SessionConfig{})
	defer s.Close()
	if len(m.Items()) != 0 {
		t.Errorf("Items() = %v, want empty", itemIDs(m.Items()))
	}
}
