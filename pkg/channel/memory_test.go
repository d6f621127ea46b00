package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

func payload(pairs ...[2]int) stroke.Payload {
	return stroke.Payload{P: pairs}
}

func TestMemory_SendEmitsInsert(t *testing.T) {
	m := NewMemory()
	var got []stroke.Record
	sub := m.SubscribeInserts(func(r stroke.Record) { got = append(got, r) })
	defer sub.Unsubscribe()

	id, err := m.Send(context.Background(), payload([2]int{1, 2}), "owner")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != id || got[0].OwnerID != "owner" {
		t.Fatalf("inserts = %+v, want one with id %s", got, id)
	}
}

func TestMemory_SendRejectsEmpty(t *testing.T) {
	m := NewMemory()
	calls := 0
	m.SubscribeInserts(func(stroke.Record) { calls++ })
	if _, err := m.Send(context.Background(), payload(), ""); !errors.Is(err, stroke.ErrEmptyStroke) {
		t.Errorf("Send(empty) error = %v, want ErrEmptyStroke", err)
	}
	if calls != 0 {
		t.Errorf("insert handler called %d times, want 0", calls)
	}
}

func TestMemory_SendFailure(t *testing.T) {
	m := NewMemory()
	m.SendErr = errors.New("store down")
	id, err := m.Send(context.Background(), payload([2]int{1, 1}), "")
	if err == nil || id != "" {
		t.Errorf("Send() = (%q, %v), want failure", id, err)
	}
	recent, _ := m.FetchRecent(context.Background(), 10)
	if len(recent) != 0 {
		t.Errorf("FetchRecent() = %d rows, want 0", len(recent))
	}
}

func TestMemory_DeleteByID(t *testing.T) {
	m := NewMemory()
	var deleted []string
	m.SubscribeDeletes(func(id string) { deleted = append(deleted, id) })

	id, _ := m.Send(context.Background(), payload([2]int{1, 1}), "")
	m.DeleteByID(context.Background(), id)
	m.DeleteByID(context.Background(), id)
	m.DeleteByID(context.Background(), "missing")

	if len(deleted) != 1 || deleted[0] != id {
		t.Errorf("deletes = %v, want [%s]", deleted, id)
	}
}

func TestMemory_FetchRecentNewestFirst(t *testing.T) {
	m := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec, _ := stroke.NewRecord(id, "", base.Add(time.Duration(i)*time.Second), payload([2]int{i, i}))
		m.Publish(rec)
	}
	got, err := m.FetchRecent(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("FetchRecent(2) ids = %v, want [c b]", ids(got))
	}
}

func TestSubscription_UnsubscribeIdempotent(t *testing.T) {
	m := NewMemory()
	calls := 0
	sub := m.SubscribeDeletes(func(string) { calls++ })
	other := m.SubscribeDeletes(func(string) {})
	sub.Unsubscribe()
	sub.Unsubscribe()

	if _, deletes := m.Subscribers(); deletes != 1 {
		t.Errorf("delete subscribers = %d, want 1", deletes)
	}
	rec, _ := stroke.NewRecord("x", "", time.Now(), payload([2]int{1, 1}))
	m.Publish(rec)
	m.DeleteByID(context.Background(), "x")
	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times", calls)
	}
	other.Unsubscribe()
}

func TestSubscription_HandlerMayUnsubscribeItself(t *testing.T) {
	m := NewMemory()
	var sub Subscription
	calls := 0
	sub = m.SubscribeInserts(func(stroke.Record) {
		calls++
		sub.Unsubscribe()
	})
	for i := 0; i < 3; i++ {
		if _, err := m.Send(context.Background(), payload([2]int{i, i}), ""); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func ids(rs []stroke.Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}
