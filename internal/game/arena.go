package game

import (
	"sync"
	"time"

	"github.com/lanefield/arena/internal/protocol"
)

// MaxHealth is the authoritative health ceiling.
const MaxHealth = 100

// PlayerState is one member's authoritative in-match state.
//
// Invariant: 0 <= Health <= MaxHealth.
type PlayerState struct {
	ID         string
	Name       string
	Position   protocol.Vec3
	Rotation   float64
	Animation  string
	Velocity   protocol.Vec3
	Health     int
	Kills      int
	Deaths     int
	Alive      bool
	SpawnIndex int
	UpdatedAt  time.Time
}

// Arena is the PlayerState table for one active room. State is mutated
// only through the reducer methods below, so every concurrent-update race
// is a lock-ordered sequence of whole-field overwrites.
type Arena struct {
	mu      sync.RWMutex
	players map[string]*PlayerState
	spawns  *SpawnPicker
}

// NewArena seats the given members at distinct spawn points with full
// health.
//
// Precondition: spawns must be non-nil; members must be non-empty.
// Postcondition: every member has Health == MaxHealth, Alive == true, and
// zero kills and deaths.
func NewArena(members []protocol.Identity, spawns *SpawnPicker) *Arena {
	a := &Arena{players: make(map[string]*PlayerState, len(members)), spawns: spawns}
	now := time.Now()
	for i, m := range members {
		a.players[m.ID] = &PlayerState{
			ID:         m.ID,
			Name:       m.Name,
			Position:   spawns.At(i),
			Health:     MaxHealth,
			Alive:      true,
			SpawnIndex: i,
			UpdatedAt:  now,
		}
	}
	return a
}

// ApplyMove folds a client's own-position report into its state. The
// sender is authoritative for its transform, so each field is overwritten
// as-is, last write wins.
//
// Postcondition: Returns false if the player is not in the arena.
func (a *Arena) ApplyMove(id string, mv protocol.PlayerMove, at time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.players[id]
	if !ok {
		return false
	}
	p.Position = mv.Position
	p.Rotation = mv.Rotation
	p.Animation = mv.Animation
	p.Velocity = mv.Velocity
	p.UpdatedAt = at
	return true
}

// DamageResult reports the outcome of an authoritative damage application.
type DamageResult struct {
	TargetName string
	NewHealth  int
	Killed     bool
	KillerName string
}

// ApplyDamage decrements the target's health, clamped to zero, crediting
// the shooter on a kill.
//
// Postcondition: target health stays in [0, MaxHealth]. On a kill the
// target is marked dead with deaths+1 and the shooter gains kills+1.
// Returns an UnknownTarget error when the target is absent or already
// dead.
func (a *Arena) ApplyDamage(targetID, shooterID string, damage int) (DamageResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	target, ok := a.players[targetID]
	if !ok {
		return DamageResult{}, protocol.Errorf(protocol.KindUnknownTarget,
			"target %s is not in the match", targetID)
	}
	if !target.Alive {
		return DamageResult{}, protocol.Errorf(protocol.KindUnknownTarget,
			"target %s is already dead", targetID)
	}

	target.Health -= damage
	if target.Health < 0 {
		target.Health = 0
	}

	res := DamageResult{TargetName: target.Name, NewHealth: target.Health}
	if target.Health == 0 {
		target.Alive = false
		target.Deaths++
		res.Killed = true
		if shooter, ok := a.players[shooterID]; ok {
			shooter.Kills++
			res.KillerName = shooter.Name
		}
	}
	return res, nil
}

// ApplyRespawn restores a dead player to full health at a fresh spawn
// point.
//
// Postcondition: Returns the new position; the player is alive with
// Health == MaxHealth. Respawning a living or absent player is a no-op
// reported via ok == false.
func (a *Arena) ApplyRespawn(id string) (protocol.Vec3, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.players[id]
	if !ok || p.Alive {
		return protocol.Vec3{}, false
	}
	idx, pos := a.spawns.Fresh(p.SpawnIndex)
	p.SpawnIndex = idx
	p.Position = pos
	p.Velocity = protocol.Vec3{}
	p.Health = MaxHealth
	p.Alive = true
	p.UpdatedAt = time.Now()
	return pos, true
}

// Remove drops a player from the arena.
func (a *Arena) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.players, id)
}

// Get returns a copy of one player's state.
func (a *Arena) Get(id string) (PlayerState, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.players[id]
	if !ok {
		return PlayerState{}, false
	}
	return *p, true
}

// Alive returns the ids of members still standing, in no particular
// order.
func (a *Arena) Alive() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.players))
	for id, p := range a.players {
		if p.Alive {
			out = append(out, id)
		}
	}
	return out
}

// IDs returns the ids of every player still in the arena.
func (a *Arena) IDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.players))
	for id := range a.players {
		out = append(out, id)
	}
	return out
}

// Size returns the number of players still in the arena.
func (a *Arena) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.players)
}

// Snapshot returns the batched wire view of every player, including the
// kills/deaths scoreboard fields.
func (a *Arena) Snapshot() []protocol.PlayerSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]protocol.PlayerSnapshot, 0, len(a.players))
	for _, p := range a.players {
		out = append(out, protocol.PlayerSnapshot{
			ID:        p.ID,
			Name:      p.Name,
			Position:  p.Position,
			Rotation:  p.Rotation,
			Animation: p.Animation,
			Velocity:  p.Velocity,
			Health:    p.Health,
			Kills:     p.Kills,
			Deaths:    p.Deaths,
			Alive:     p.Alive,
		})
	}
	return out
}
