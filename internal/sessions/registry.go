package sessions

import (
	"sort"
	"sync"

	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/status"
)

// Entry is a live session: its client, resolved capabilities and status.
type Entry struct {
	ID     string
	Name   string
	Client chat.Client
	Caps   chat.Descriptor
	Status status.State
}

// Registry is the in-memory set of live sessions. A session is live if and
// only if it is present here.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Has reports whether id is live.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Set stores or replaces an entry.
func (r *Registry) Set(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
}

// SetStatus updates the status of a present entry.
func (r *Registry) SetStatus(id string, s status.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.Status = s
		r.entries[id] = e
	}
}

// Delete removes and returns the entry for id.
func (r *Registry) Delete(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	return e, ok
}

// List returns all entries ordered by id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
