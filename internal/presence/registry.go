// Package presence tracks which users currently hold a live session.
package presence

import (
	"sort"
	"sync"
)

// Session is the transport handle the registry tracks. The concrete type
// lives with the gateway; the registry only needs a stable identifier and
// a way for callers to push frames after a lookup.
type Session interface {
	SID() string
	Push(data []byte) error
}

// Registry is the authoritative in-memory record of online users: one
// entry per user, one session per entry. All methods are safe for
// concurrent use from independent connection lifecycles.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Session
	owner  map[string]string // session id -> user id
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]Session),
		owner:  make(map[string]string),
	}
}

// Register inserts or replaces the entry for userID and returns the
// superseded session, if any. The caller decides whether to close the old
// transport; the registry only guarantees it no longer owns an entry.
// A session re-registering under a different identity gives up its old
// one, so the two maps stay strictly bidirectional.
func (r *Registry) Register(userID string, s Session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oldUser, ok := r.owner[s.SID()]; ok && oldUser != userID {
		delete(r.byUser, oldUser)
	}
	prev := r.byUser[userID]
	if prev != nil {
		delete(r.owner, prev.SID())
	}
	r.byUser[userID] = s
	r.owner[s.SID()] = userID
	return prev
}

// Unregister removes the entry held by s and reports which user it
// belonged to. A session superseded by a newer registration no longer
// owns an entry, so its disconnect is a no-op here.
func (r *Registry) Unregister(s Session) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.owner[s.SID()]
	if !ok {
		return "", false
	}
	delete(r.owner, s.SID())
	delete(r.byUser, userID)
	return userID, true
}

// Lookup returns the live session for userID, if any.
func (r *Registry) Lookup(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	return s, ok
}

// Snapshot returns the set of online user ids as of the instant read,
// sorted for stable output.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		out = append(out, userID)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
