// Package overlay turns the stream of remote strokes into the short-lived, placed and colored
// items a viewer draws on top of the presentation.
package overlay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/placement"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// DefaultTTL is how long an item stays on screen when no delete arrives first.
const DefaultTTL = 4 * time.Second

// Item is the renderable form of a stroke.
type Item struct {
	ID         string              `json:"id"`
	Path       []stroke.Point      `json:"path"`
	Placement  placement.Placement `json:"placement"`
	ColorIndex int                 `json:"color_index"`
	Color      string              `json:"color"`
}

type Config struct {
	// TTL is the local display lifetime. Zero means DefaultTTL, negative disables local
	// expiry so items leave only when the server deletes them.
	TTL     time.Duration
	Palette placement.Palette
	Clock   Clock
	Journal *Journal
}

func (c *Config) defaults() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
}

type pendingExpiry struct {
	timer Timer
}

// Manager owns the render list and one expiry timer per visible item. All methods are safe
// for concurrent use; every mutation happens under one lock, and render receives snapshots
// in mutation order.
type Manager struct {
	cfg    Config
	render func([]Item)

	mu         sync.Mutex
	items      []Item
	timers     map[string]*pendingExpiry
	tombstones map[string]struct{}
	version    uint64
	closed     bool

	renderMu        sync.Mutex
	renderedAtLeast uint64
}

// NewManager builds a manager that calls render with the full item list after each change.
// render must not call back into the manager.
func NewManager(cfg Config, render func([]Item)) *Manager {
	cfg.defaults()
	if render == nil {
		render = func([]Item) {}
	}
	return &Manager{
		cfg:        cfg,
		render:     render,
		timers:     make(map[string]*pendingExpiry),
		tombstones: make(map[string]struct{}),
	}
}

// Insert makes s visible unless it is already tracked, has expired locally, or the manager
// is closed. It reports whether the item was added.
func (m *Manager) Insert(s stroke.Stroke) bool {
	m.mu.Lock()
	added := m.insertLocked(s)
	snap, v := m.snapshotLocked(added)
	m.mu.Unlock()
	m.publish(snap, v)
	return added
}

// Delete removes a visible item because its record was deleted. Unknown ids are ignored.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	delete(m.tombstones, id)
	removed := m.removeLocked(id, Removed, "deleted")
	snap, v := m.snapshotLocked(removed)
	m.mu.Unlock()
	m.publish(snap, v)
	return removed
}

// Reconcile removes every tracked item whose id is not in alive and forgets tombstones for
// ids that are no longer alive.
func (m *Manager) Reconcile(alive []string) int {
	present := make(map[string]struct{}, len(alive))
	for _, id := range alive {
		present[id] = struct{}{}
	}
	m.mu.Lock()
	n := m.reconcileLocked(present)
	snap, v := m.snapshotLocked(n > 0)
	m.mu.Unlock()
	m.publish(snap, v)
	return n
}

// Sync appends every alive stroke not seen before, in order, and then reconciles the
// tracked set against alive.
func (m *Manager) Sync(alive []stroke.Stroke) {
	present := make(map[string]struct{}, len(alive))
	m.mu.Lock()
	changed := false
	for _, s := range alive {
		present[s.ID] = struct{}{}
		if m.insertLocked(s) {
			changed = true
		}
	}
	if m.reconcileLocked(present) > 0 {
		changed = true
	}
	snap, v := m.snapshotLocked(changed)
	m.mu.Unlock()
	m.publish(snap, v)
}

// SetPalette switches the color tokens, for example on a theme change, and re-renders.
func (m *Manager) SetPalette(p placement.Palette) {
	m.mu.Lock()
	m.cfg.Palette = p
	for i := range m.items {
		m.items[i].Color = p.At(m.items[i].ColorIndex)
	}
	snap, v := m.snapshotLocked(!m.closed)
	m.mu.Unlock()
	m.publish(snap, v)
}

// Items returns a copy of the current render list.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyItemsLocked()
}

// Pending is the number of armed expiry timers.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Close cancels every pending timer and ignores all later events. It is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, p := range m.timers {
		p.timer.Stop()
		delete(m.timers, id)
	}
	slog.Debug("overlay closed", "items", len(m.items))
}

func (m *Manager) insertLocked(s stroke.Stroke) bool {
	if m.closed || s.ID == "" {
		return false
	}
	if _, expired := m.tombstones[s.ID]; expired {
		return false
	}
	if m.indexLocked(s.ID) >= 0 {
		return false
	}
	idx := placement.ColorIndex(s.ID, len(m.cfg.Palette))
	m.items = append(m.items, Item{
		ID:         s.ID,
		Path:       s.Path,
		Placement:  placement.Place(s.ID),
		ColorIndex: idx,
		Color:      m.cfg.Palette.At(idx),
	})
	m.journal(s.ID, Absent, Visible, "inserted")

	if m.cfg.TTL > 0 {
		id := s.ID
		p := &pendingExpiry{}
		m.timers[id] = p
		p.timer = m.cfg.Clock.AfterFunc(m.cfg.TTL, func() { m.expire(id, p) })
	}
	return true
}

func (m *Manager) expire(id string, p *pendingExpiry) {
	m.mu.Lock()
	if m.timers[id] != p {
		// stale: the item was removed, or re-armed, after this timer was created
		m.mu.Unlock()
		return
	}
	delete(m.timers, id)
	removed := m.removeLocked(id, Expired, "ttl")
	if removed {
		m.tombstones[id] = struct{}{}
	}
	snap, v := m.snapshotLocked(removed)
	m.mu.Unlock()
	m.publish(snap, v)
}

func (m *Manager) removeLocked(id string, to State, cause string) bool {
	if m.closed {
		return false
	}
	i := m.indexLocked(id)
	if i < 0 {
		return false
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
	if p, ok := m.timers[id]; ok {
		p.timer.Stop()
		delete(m.timers, id)
	}
	m.journal(id, Visible, to, cause)
	return true
}

func (m *Manager) reconcileLocked(present map[string]struct{}) int {
	if m.closed {
		return 0
	}
	for id := range m.tombstones {
		if _, ok := present[id]; !ok {
			delete(m.tombstones, id)
		}
	}
	n := 0
	for i := len(m.items) - 1; i >= 0; i-- {
		id := m.items[i].ID
		if _, ok := present[id]; ok {
			continue
		}
		if m.removeLocked(id, Removed, "reconciled") {
			n++
		}
	}
	return n
}

func (m *Manager) indexLocked(id string) int {
	for i := range m.items {
		if m.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) journal(id string, from, to State, cause string) {
	m.cfg.Journal.record(Transition{At: m.cfg.Clock.Now(), ID: id, From: from, To: to, Cause: cause})
}

func (m *Manager) copyItemsLocked() []Item {
	out := make([]Item, len(m.items))
	copy(out, m.items)
	return out
}

func (m *Manager) snapshotLocked(changed bool) ([]Item, uint64) {
	if !changed {
		return nil, 0
	}
	m.version++
	return m.copyItemsLocked(), m.version
}

// publish hands a snapshot to render unless a newer one has already been delivered.
func (m *Manager) publish(items []Item, version uint64) {
	if version == 0 {
		return
	}
	m.renderMu.Lock()
	defer m.renderMu.Unlock()
	if version <= m.renderedAtLeast {
		return
	}
	m.renderedAtLeast = version
	m.render(items)
}
