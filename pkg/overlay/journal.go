package overlay

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

type State string

const (
	Absent  State = "absent"
	Visible State = "visible"
	Expired State = "expired"
	Removed State = "removed"
)

// Transition is one lifecycle step of an item.
type Transition struct {
	At    time.Time `json:"at"`
	ID    string    `json:"id"`
	From  State     `json:"from"`
	To    State     `json:"to"`
	Cause string    `json:"cause"`
}

// Journal keeps the transitions a Manager made, oldest first. A zero Limit keeps
// everything; otherwise the oldest entries are dropped.
type Journal struct {
	Limit int

	mu      sync.Mutex
	entries []Transition
}

func (j *Journal) record(t Transition) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, t)
	if j.Limit > 0 && len(j.entries) > j.Limit {
		j.entries = append(j.entries[:0:0], j.entries[len(j.entries)-j.Limit:]...)
	}
}

func (j *Journal) Entries() []Transition {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Transition, len(j.entries))
	copy(out, j.entries)
	return out
}

// WriteFile dumps the journal as JSON.
func (j *Journal) WriteFile(path string) error {
	raw, err := json.MarshalIndent(j.Entries(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}

// ReadJournalFile loads a journal written by WriteFile.
func ReadJournalFile(path string) ([]Transition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	var out []Transition
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode journal: %w", err)
	}
	return out, nil
}
