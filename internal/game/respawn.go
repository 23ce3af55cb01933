package game

import (
	"sync"
	"time"
)

// respawnEntry is a single pending respawn.
type respawnEntry struct {
	playerID string
	readyAt  time.Time
}

// RespawnScheduler queues dead players and releases them after the
// respawn delay. It is driven by the match tick rather than per-player
// timers, so respawns fire in death order and stop with the match.
//
// Invariant: a player appears at most once in the queue.
type RespawnScheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	pending []respawnEntry
}

// NewRespawnScheduler creates a scheduler with the given delay.
//
// Precondition: delay must be > 0.
func NewRespawnScheduler(delay time.Duration) *RespawnScheduler {
	return &RespawnScheduler{delay: delay}
}

// Schedule queues playerID to respawn one delay from now. Scheduling an
// already-queued player is a no-op.
func (s *RespawnScheduler) Schedule(playerID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.pending {
		if e.playerID == playerID {
			return
		}
	}
	s.pending = append(s.pending, respawnEntry{playerID: playerID, readyAt: now.Add(s.delay)})
}

// Cancel drops a queued respawn, if any. Used when the player leaves
// before their respawn fires.
func (s *RespawnScheduler) Cancel(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending[:0]
	for _, e := range s.pending {
		if e.playerID != playerID {
			out = append(out, e)
		}
	}
	s.pending = out
}

// Due pops every entry whose delay has elapsed, in scheduling order.
//
// Postcondition: popped entries are no longer pending.
func (s *RespawnScheduler) Due(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []string
	rest := s.pending[:0]
	for _, e := range s.pending {
		if !e.readyAt.After(now) {
			due = append(due, e.playerID)
		} else {
			rest = append(rest, e)
		}
	}
	s.pending = rest
	return due
}

// Pending returns the number of queued respawns.
func (s *RespawnScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
