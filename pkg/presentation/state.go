// Package presentation holds the state the host shares with every viewer, currently the
// dark mode flag, as an automerge document that peers keep in sync over a websocket.
package presentation

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"
)

// DarkKey is the document path of the dark mode flag.
const DarkKey = "dark"

// DefaultDark applies until someone sets the flag.
const DefaultDark = true

// State wraps the shared document. Subscribers hear about every change of the dark flag,
// whether it was made locally or arrived through Sync.
type State struct {
	doc *automerge.Doc

	mu       sync.Mutex
	next     uint64
	subs     map[uint64]func(dark bool)
	lastDark bool
	heads    string
}

// New returns a state backed by an empty document with a fresh actor id.
func New() *State {
	return wrap(automerge.New())
}

// Load restores a state from a saved document. The local actor id is replaced so that
// changes made here never collide with the peer that saved it.
func Load(raw []byte) (*State, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	id := uuid.New()
	if err := doc.SetActorID(hex.EncodeToString(id[:])); err != nil {
		return nil, fmt.Errorf("failed to set actor: %w", err)
	}
	return wrap(doc), nil
}

func wrap(doc *automerge.Doc) *State {
	s := &State{doc: doc, subs: make(map[uint64]func(bool))}
	s.lastDark = s.Dark()
	s.heads = headsKey(doc)
	return s
}

// Doc exposes the underlying document for syncing and saving.
func (s *State) Doc() *automerge.Doc {
	return s.doc
}

func (s *State) Save() []byte {
	return s.doc.Save()
}

// NewSyncState starts a sync session with one peer.
func (s *State) NewSyncState() *automerge.SyncState {
	return automerge.NewSyncState(s.doc)
}

// Dark reads the flag, falling back to DefaultDark when it is unset or not a bool.
func (s *State) Dark() bool {
	value, err := s.doc.Path(DarkKey).Get()
	if err != nil {
		return DefaultDark
	}
	if b, ok := value.Interface().(bool); ok {
		return b
	}
	return DefaultDark
}

// SetDark writes and commits the flag, then notifies subscribers if it changed.
func (s *State) SetDark(dark bool) error {
	if err := s.doc.Path(DarkKey).Set(dark); err != nil {
		return fmt.Errorf("failed to set %s: %w", DarkKey, err)
	}
	if _, err := s.doc.Commit(fmt.Sprintf("set %s=%t", DarkKey, dark), automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.Check()
	return nil
}

// Toggle flips the flag and returns the new value.
func (s *State) Toggle() (bool, error) {
	next := !s.Dark()
	return next, s.SetDark(next)
}

// Subscription stops notifications when Unsubscribe is called; calling it twice is fine.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (sub *Subscription) Unsubscribe() {
	sub.once.Do(sub.cancel)
}

// Subscribe registers fn for changes of the dark flag. fn is not called with the current
// value; read Dark for that.
func (s *State) Subscribe(fn func(dark bool)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.subs[id] = fn
	return &Subscription{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}}
}

// Check compares the document against what subscribers last heard and notifies them when
// the flag moved. Sync calls it after every received message.
func (s *State) Check() {
	heads := headsKey(s.doc)
	s.mu.Lock()
	if heads == s.heads {
		s.mu.Unlock()
		return
	}
	s.heads = heads
	dark := s.Dark()
	if dark == s.lastDark {
		s.mu.Unlock()
		return
	}
	s.lastDark = dark
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	slog.Info("presentation changed", "dark", dark, "heads", heads)
	for _, fn := range fns {
		fn(dark)
	}
}

func headsKey(doc *automerge.Doc) string {
	heads := doc.Heads()
	parts := make([]string, 0, len(heads))
	for _, h := range heads {
		parts = append(parts, h.String())
	}
	return strings.Join(parts, ",")
}
