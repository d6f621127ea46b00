package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// Memory is an in-process Channel. Events are delivered synchronously on the caller's
// goroutine, in the order the mutations happen.
type Memory struct {
	events

	mu   sync.Mutex
	rows map[string]stroke.Record
	now  func() time.Time

	// SendErr, when set, makes every Send fail with it.
	SendErr error
}

var _ Channel = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]stroke.Record), now: time.Now}
}

func (m *Memory) Send(ctx context.Context, payload stroke.Payload, ownerID string) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		slog.Error("failed to send stroke", "err", err)
		return "", err
	}
	if m.SendErr != nil {
		slog.Error("failed to send stroke", "err", m.SendErr)
		return "", fmt.Errorf("failed to send stroke: %w", m.SendErr)
	}
	rec, err := stroke.NewRecord(uuid.NewString(), ownerID, m.now().UTC(), payload)
	if err != nil {
		return "", err
	}
	m.Publish(rec)
	return rec.ID, nil
}

// Publish stores rec and emits an insert event, as if another client had sent it.
func (m *Memory) Publish(rec stroke.Record) {
	m.mu.Lock()
	m.rows[rec.ID] = rec
	m.mu.Unlock()
	m.inserts.emit(rec)
}

func (m *Memory) DeleteByID(_ context.Context, id string) {
	m.mu.Lock()
	_, ok := m.rows[id]
	delete(m.rows, id)
	m.mu.Unlock()
	if !ok {
		slog.Debug("delete of unknown stroke", "id", id)
		return
	}
	m.deletes.emit(id)
}

// Drop removes a row without emitting a delete event, which is what a missed event looks
// like to a subscriber.
func (m *Memory) Drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
}

// Resync tells subscribers that events may have been missed.
func (m *Memory) Resync() {
	m.resyncs.emit(struct{}{})
}

func (m *Memory) FetchRecent(ctx context.Context, limit int) ([]stroke.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]stroke.Record, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Subscribers reports how many insert and delete handlers are registered.
func (m *Memory) Subscribers() (inserts, deletes int) {
	return m.inserts.len(), m.deletes.len()
}
