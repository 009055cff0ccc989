package workspace

import (
	"sync"
)

// Registry hands out one workspace per user
type Registry struct {
	cfg Config

	mu     sync.Mutex
	spaces map[string]*Workspace
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:    cfg,
		spaces: make(map[string]*Workspace),
	}
}

// Open returns the workspace of user, building it on first use
func (r *Registry) Open(user string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.spaces[user]; ok {
		return ws
	}
	ws := New(user, r.cfg)
	r.spaces[user] = ws
	return ws
}

// Lookup returns the workspace of user if it is open
func (r *Registry) Lookup(user string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.spaces[user]
	return ws, ok
}

// Close tears down the workspace of user. The next Open builds a fresh one.
func (r *Registry) Close(user string) bool {
	r.mu.Lock()
	ws, ok := r.spaces[user]
	delete(r.spaces, user)
	r.mu.Unlock()

	if ok {
		ws.Close()
	}
	return ok
}

// CloseAll tears down every workspace
func (r *Registry) CloseAll() {
	r.mu.Lock()
	spaces := r.spaces
	r.spaces = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, ws := range spaces {
		ws.Close()
	}
}

// Count returns the number of open workspaces
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spaces)
}
