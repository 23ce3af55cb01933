package client

import (
	"sync"

	"github.com/lanefield/arena/internal/protocol"
)

// ReplicaStore mirrors the other members of the match as the server
// reports them. Snapshots overwrite whole entries, last write wins;
// health changes only through confirmed updates, never from local
// prediction.
type ReplicaStore struct {
	mu      sync.RWMutex
	selfID  string
	players map[string]protocol.PlayerSnapshot
}

// NewReplicaStore creates an empty store that ignores selfID, since the
// local player is simulated, not replicated.
func NewReplicaStore(selfID string) *ReplicaStore {
	return &ReplicaStore{selfID: selfID, players: make(map[string]protocol.PlayerSnapshot)}
}

// ApplySnapshot folds one update-positions batch in.
//
// Postcondition: every non-self entry in the batch is stored verbatim.
func (r *ReplicaStore) ApplySnapshot(batch []protocol.PlayerSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range batch {
		if p.ID == r.selfID {
			continue
		}
		r.players[p.ID] = p
	}
}

// ApplyHealth overwrites one replica's authoritative health.
func (r *ReplicaStore) ApplyHealth(update protocol.PlayerHealthUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[update.ID]
	if !ok {
		return
	}
	p.Health = update.Health
	p.Alive = update.Health > 0
	r.players[update.ID] = p
}

// ApplyRespawn moves a replica to its respawn point at full health.
func (r *ReplicaStore) ApplyRespawn(respawn protocol.PlayerRespawn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[respawn.ID]
	if !ok {
		return
	}
	p.Position = respawn.Position
	p.Health = respawn.Health
	p.Alive = true
	p.Velocity = protocol.Vec3{}
	r.players[respawn.ID] = p
}

// Remove drops a departed member's replica.
func (r *ReplicaStore) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, id)
}

// Get returns one replica by id.
func (r *ReplicaStore) Get(id string) (protocol.PlayerSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	return p, ok
}

// Targets returns the replicas a bullet can hit: everyone alive.
func (r *ReplicaStore) Targets() []protocol.PlayerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.PlayerSnapshot, 0, len(r.players))
	for _, p := range r.players {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// Size returns the replica count.
func (r *ReplicaStore) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
