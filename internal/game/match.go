package game

import (
	"time"

	"github.com/lanefield/arena/internal/protocol"
)

// Match bundles the per-room combat state: the player arena, the hit
// reconciler, and the respawn queue. One Match exists per active room and
// dies with it.
type Match struct {
	RoomID     string
	Arena      *Arena
	Reconciler *Reconciler
	Respawns   *RespawnScheduler
}

// MatchConfig carries the tunables a match needs from configuration.
type MatchConfig struct {
	// BulletLifetime bounds how long a reconciled bullet id is remembered.
	BulletLifetime time.Duration
	// RespawnDelay is the time between death and respawn.
	RespawnDelay time.Duration
}

// NewMatch seats members in a fresh arena and wires the reconciler and
// respawn queue around it.
//
// Precondition: members must be the frozen roster from a successful
// start; spawns must be non-nil.
func NewMatch(roomID string, members []protocol.Identity, spawns *SpawnPicker, cfg MatchConfig) *Match {
	arena := NewArena(members, spawns)
	return &Match{
		RoomID:     roomID,
		Arena:      arena,
		Reconciler: NewReconciler(arena, cfg.BulletLifetime),
		Respawns:   NewRespawnScheduler(cfg.RespawnDelay),
	}
}

// ConfirmHit arbitrates a candidate claim and, on a kill, queues the
// victim's respawn.
func (m *Match) ConfirmHit(claim protocol.PlayerHit, now time.Time) (Confirmation, error) {
	conf, err := m.Reconciler.Confirm(claim, now)
	if err != nil {
		return Confirmation{}, err
	}
	if conf.Killed != nil {
		m.Respawns.Schedule(conf.Killed.VictimID, now)
	}
	return conf, nil
}

// DueRespawns pops due respawns and applies them to the arena, returning
// the wire payloads to broadcast.
func (m *Match) DueRespawns(now time.Time) []protocol.PlayerRespawn {
	var out []protocol.PlayerRespawn
	for _, id := range m.Respawns.Due(now) {
		pos, ok := m.Arena.ApplyRespawn(id)
		if !ok {
			continue
		}
		out = append(out, protocol.PlayerRespawn{ID: id, Position: pos, Health: MaxHealth})
	}
	return out
}

// RemovePlayer drops a member from the match entirely: arena state and
// any queued respawn.
func (m *Match) RemovePlayer(id string) {
	m.Respawns.Cancel(id)
	m.Arena.Remove(id)
}

// SoleSurvivor returns the last member remaining, if departures have
// shrunk the match to exactly one player. Death alone never resolves the
// match, the victim respawns; only membership removal can leave a sole
// survivor.
func (m *Match) SoleSurvivor() (PlayerState, bool) {
	ids := m.Arena.IDs()
	if len(ids) != 1 {
		return PlayerState{}, false
	}
	return m.Arena.Get(ids[0])
}
