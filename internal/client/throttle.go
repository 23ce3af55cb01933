package client

import (
	"time"

	"github.com/lanefield/arena/internal/protocol"
)

// MoveThrottler rate-limits own-position reports: a move is sent when
// the player displaced by more than epsilon since the last send, or when
// the heartbeat interval elapsed without one. The heartbeat bounds how
// stale a stationary player can look to the room.
type MoveThrottler struct {
	epsilonSq float64
	heartbeat time.Duration

	lastSent protocol.Vec3
	lastAt   time.Time
	sentOnce bool
}

// NewMoveThrottler creates a throttler.
//
// Precondition: epsilonSq must be >= 0; heartbeat must be > 0.
func NewMoveThrottler(epsilonSq float64, heartbeat time.Duration) *MoveThrottler {
	return &MoveThrottler{epsilonSq: epsilonSq, heartbeat: heartbeat}
}

// ShouldSend reports whether a position report is due and, if so,
// records it as sent.
//
// Postcondition: Returns true for the first call, for any displacement
// beyond epsilon, and whenever heartbeat elapsed since the last send.
func (m *MoveThrottler) ShouldSend(pos protocol.Vec3, now time.Time) bool {
	if m.sentOnce && now.Sub(m.lastAt) < m.heartbeat && distSq(pos, m.lastSent) <= m.epsilonSq {
		return false
	}
	m.lastSent = pos
	m.lastAt = now
	m.sentOnce = true
	return true
}

func distSq(a, b protocol.Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}
