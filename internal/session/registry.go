package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codefionn/livecast/internal/upstream"
)

// Info describes a live session for status endpoints.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Flags     Flags     `json:"flags"`
}

// Registry maps connection ids to their State. Entries are created when a
// connection is set up and removed during its cleanup.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*State),
	}
}

// Create registers a new state for id. Ids are never reused, so a duplicate
// is a programming error and panics.
func (r *Registry) Create(id string, up upstream.Session) *State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		panic(fmt.Sprintf("session: duplicate session id %q", id))
	}

	st := NewState(id, up)
	r.sessions[id] = st
	return st
}

// Get returns the state for id.
func (r *Registry) Get(id string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.sessions[id]
	return st, ok
}

// Remove deletes id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns info for every live session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	states := make([]*State, 0, len(r.sessions))
	for _, st := range r.sessions {
		states = append(states, st)
	}
	r.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		if states[i].CreatedAt.Equal(states[j].CreatedAt) {
			return states[i].ID < states[j].ID
		}
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})

	infos := make([]Info, 0, len(states))
	for _, st := range states {
		infos = append(infos, Info{ID: st.ID, CreatedAt: st.CreatedAt, Flags: st.Flags()})
	}
	return infos
}
