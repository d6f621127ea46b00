package overlay

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/astromechza/stroke-overlay/pkg/channel"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// DefaultLimit is the backlog size fetched when a session starts.
const DefaultLimit = 50

const recentlyDeletedCap = 1024

type SessionConfig struct {
	Quant int
	Limit int
}

func (c *SessionConfig) defaults() {
	if c.Quant <= 0 {
		c.Quant = stroke.DefaultQuant
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
}

// Session feeds a Manager from a Channel. It keeps the authoritative list of alive strokes
// (backlog plus inserts minus deletes) and syncs the manager after every change.
type Session struct {
	ch  channel.Channel
	m   *Manager
	cfg SessionConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	alive    []stroke.Stroke
	deleted  map[string]struct{}
	order    []string
	fetching int
	arrived  []stroke.Stroke

	subs      []channel.Subscription
	closeOnce sync.Once
}

// StartSession subscribes to ch, then loads the backlog into m. Subscribing first means an
// insert or delete racing the backlog fetch is not lost; duplicates are dropped by id. A
// failed fetch is logged and the session continues on the live stream alone.
func StartSession(ctx context.Context, ch channel.Channel, m *Manager, cfg SessionConfig) *Session {
	cfg.defaults()
	s := &Session{
		ch:      ch,
		m:       m,
		cfg:     cfg,
		deleted: make(map[string]struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.subs = append(s.subs,
		ch.SubscribeInserts(s.onInsert),
		ch.SubscribeDeletes(s.onDelete),
		ch.SubscribeResync(func() { s.Refresh(s.ctx) }),
	)
	s.Refresh(s.ctx)
	return s
}

// Close unsubscribes from the channel and tears down the manager's timers. It is safe to
// call more than once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
		s.m.Close()
	})
}

// Alive returns the ids currently considered alive, oldest first.
func (s *Session) Alive() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.alive))
	for _, a := range s.alive {
		out = append(out, a.ID)
	}
	return out
}

// Refresh re-fetches the backlog and makes it the new alive set, keeping inserts that
// arrived while the fetch was in flight. Tracked items missing from the result are removed.
func (s *Session) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.fetching++
	s.mu.Unlock()

	recs, err := s.ch.FetchRecent(ctx, s.cfg.Limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetching--
	arrived := s.arrived
	if s.fetching == 0 {
		s.arrived = nil
	}
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("failed to fetch backlog", "err", err)
		}
		return
	}

	slices.Reverse(recs)
	next := make([]stroke.Stroke, 0, len(recs)+len(arrived))
	seen := make(map[string]struct{}, len(recs)+len(arrived))
	for _, rec := range recs {
		st, err := stroke.DecodeRecord(rec, s.cfg.Quant)
		if err != nil {
			slog.Error("skipping backlog stroke", "err", err)
			continue
		}
		if _, gone := s.deleted[st.ID]; gone {
			continue
		}
		if _, dup := seen[st.ID]; dup {
			continue
		}
		seen[st.ID] = struct{}{}
		next = append(next, st)
	}
	for _, st := range arrived {
		if _, gone := s.deleted[st.ID]; gone {
			continue
		}
		if _, dup := seen[st.ID]; dup {
			continue
		}
		seen[st.ID] = struct{}{}
		next = append(next, st)
	}
	s.alive = next
	slog.Debug("backlog loaded", "records", len(recs), "alive", len(next))
	s.m.Sync(s.alive)
}

func (s *Session) onInsert(rec stroke.Record) {
	st, err := stroke.DecodeRecord(rec, s.cfg.Quant)
	if err != nil {
		slog.Error("skipping incoming stroke", "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetching > 0 {
		s.arrived = append(s.arrived, st)
	}
	if _, gone := s.deleted[st.ID]; gone {
		return
	}
	if s.indexLocked(st.ID) >= 0 {
		return
	}
	s.alive = append(s.alive, st)
	s.m.Sync(s.alive)
}

func (s *Session) onDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rememberDeletedLocked(id)
	if i := s.indexLocked(id); i >= 0 {
		s.alive = append(s.alive[:i], s.alive[i+1:]...)
	}
	s.m.Delete(id)
	s.m.Sync(s.alive)
}

func (s *Session) rememberDeletedLocked(id string) {
	if _, ok := s.deleted[id]; ok {
		return
	}
	s.deleted[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > recentlyDeletedCap {
		delete(s.deleted, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Session) indexLocked(id string) int {
	for i := range s.alive {
		if s.alive[i].ID == id {
			return i
		}
	}
	return -1
}
