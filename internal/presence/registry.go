// Package presence tracks connected identities and their coarse status.
// It is the leaf of the session server: the room manager validates
// invitees against it and the lobby roster events are derived from it.
package presence

import (
	"sync"

	"github.com/lanefield/arena/internal/protocol"
)

// Registry is the process-wide table of connected identities.
// All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	users map[string]protocol.Identity
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]protocol.Identity)}
}

// Register adds an identity, forcing its status to online.
//
// Precondition: identity.ID must be non-empty.
// Postcondition: Returns the stored identity, or an error if the id is
// already registered.
func (r *Registry) Register(identity protocol.Identity) (protocol.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[identity.ID]; exists {
		return protocol.Identity{}, protocol.Errorf(protocol.KindInvalidRoomState,
			"identity %q already connected", identity.ID)
	}
	identity.Status = protocol.StatusOnline
	r.users[identity.ID] = identity
	return identity, nil
}

// Unregister removes an identity. Removing an unknown id is a no-op.
//
// Postcondition: Returns true if the identity was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.users[id]
	delete(r.users, id)
	return existed
}

// SetStatus updates an identity's status.
//
// Precondition: status must be one of the defined Status values.
// Postcondition: Returns false if the id is unknown or the status invalid.
func (r *Registry) SetStatus(id string, status protocol.Status) bool {
	if !status.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false
	}
	u.Status = status
	r.users[id] = u
	return true
}

// Get returns the identity for id.
//
// Postcondition: Returns (identity, true) if found, or (zero, false).
func (r *Registry) Get(id string) (protocol.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// IsOnline reports whether id is registered with status online.
func (r *Registry) IsOnline(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return ok && u.Status == protocol.StatusOnline
}

// List returns a snapshot of all connected identities.
//
// Postcondition: Returns a freshly allocated slice (may be empty).
func (r *Registry) List() []protocol.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Identity, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out
}

// Count returns the number of connected identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
