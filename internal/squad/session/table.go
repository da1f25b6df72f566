package session

import (
	"sort"
	"sync"

	"github.com/kandev/squad-bridge/internal/squad/models"
)

// Table is the in-process cache of sessions the bridge has observed. Entries
// are replaced whole, never patched. Callers get copies.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*models.Session)}
}

// Put inserts or replaces the entry for s.ID.
func (t *Table) Put(s *models.Session) {
	c := *s
	t.mu.Lock()
	t.sessions[c.ID] = &c
	t.mu.Unlock()
}

// Get returns a copy of the entry for id.
func (t *Table) Get(id string) (*models.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	c := *s
	return &c, true
}

// Has reports whether id is in the table.
func (t *Table) Has(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[id]
	return ok
}

// Delete removes id and reports whether it was present.
func (t *Table) Delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[id]
	delete(t.sessions, id)
	return ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Snapshot returns copies of every entry sorted by ID.
func (t *Table) Snapshot() []*models.Session {
	t.mu.RLock()
	out := make([]*models.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		c := *s
		out = append(out, &c)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
