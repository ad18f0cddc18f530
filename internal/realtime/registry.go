package realtime

import (
	"sync"

	"github.com/lazynerd-007/lpv1-sub000/pkg/metrics"
)

// Registry tracks the live sessions open for each user. It is the single
// piece of shared mutable state in the subsystem; every operation is a pure
// in-memory map mutation under one mutex and never performs I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[*Session]struct{}),
	}
}

// Register adds the session to the user's set, creating the set if absent.
func (r *Registry) Register(userID string, s *Session) {
	if userID == "" || s == nil {
		return
	}

	r.mu.Lock()
	if r.sessions[userID] == nil {
		r.sessions[userID] = make(map[*Session]struct{})
	}
	r.sessions[userID][s] = struct{}{}
	r.updateGaugesLocked()
	r.mu.Unlock()
}

// Deregister removes the session from its user's set, dropping the user entry
// when the set becomes empty. Safe to call repeatedly; repeated calls no-op.
func (r *Registry) Deregister(s *Session) bool {
	if s == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[s.userID]
	if !ok {
		return false
	}
	if _, ok := set[s]; !ok {
		return false
	}

	delete(set, s)
	if len(set) == 0 {
		delete(r.sessions, s.userID)
	}
	r.updateGaugesLocked()
	return true
}

// SessionsFor returns a snapshot of the user's live sessions. The returned
// slice is owned by the caller and safe to iterate without holding locks.
func (r *Registry) SessionsFor(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[userID]
	if len(set) == 0 {
		return nil
	}

	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// IsUserConnected reports whether the user has at least one live session.
func (r *Registry) IsUserConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions[userID]) > 0
}

// ConnectedUserCount returns the number of distinct users with live sessions.
func (r *Registry) ConnectedUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// TotalConnectionCount returns the number of open sessions across all users.
func (r *Registry) TotalConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.sessions {
		total += len(set)
	}
	return total
}

// ConnectedUserIDs returns a snapshot of every user ID with a live session.
func (r *Registry) ConnectedUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		ids = append(ids, userID)
	}
	return ids
}

// Shutdown closes every live session. Used during process exit.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	all := make([]*Session, 0)
	for _, set := range r.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}
}

func (r *Registry) updateGaugesLocked() {
	total := 0
	for _, set := range r.sessions {
		total += len(set)
	}
	metrics.ActiveConnections.Set(float64(total))
	metrics.ConnectedUsers.Set(float64(len(r.sessions)))
}
