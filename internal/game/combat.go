package game

import (
	"sync"
	"time"

	"github.com/lanefield/arena/internal/protocol"
)

// Reconciler arbitrates candidate hit claims for one match. The shooting
// client detects the hit; health mutates only here, once, when the claim
// is confirmed. Duplicate claims for the same bullet and claims against
// absent or dead targets are rejected without state change.
type Reconciler struct {
	mu    sync.Mutex
	arena *Arena
	// reconciled maps bullet id to confirmation time, kept for one bullet
	// lifetime so late duplicates stay rejected without growing forever.
	reconciled map[string]time.Time
	retention  time.Duration
}

// NewReconciler creates a Reconciler over the given arena.
//
// Precondition: arena must be non-nil; retention must be > 0 (use the
// bullet lifetime).
func NewReconciler(arena *Arena, retention time.Duration) *Reconciler {
	return &Reconciler{
		arena:      arena,
		reconciled: make(map[string]time.Time),
		retention:  retention,
	}
}

// Confirmation is the authoritative outcome of an accepted claim.
type Confirmation struct {
	Confirmed protocol.BulletHitConfirmed
	Health    protocol.PlayerHealthUpdate
	// Killed is non-nil when the confirmed damage dropped the target to
	// zero health.
	Killed *protocol.PlayerKilled
}

// Confirm arbitrates one candidate claim.
//
// Postcondition: On success the target's health has been decremented
// exactly once for this bullet and the returned payloads describe the new
// authoritative state. On error nothing changed.
func (r *Reconciler) Confirm(claim protocol.PlayerHit, now time.Time) (Confirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(now)
	if _, dup := r.reconciled[claim.BulletID]; dup {
		return Confirmation{}, protocol.Errorf(protocol.KindStaleClaim,
			"bullet %s was already reconciled", claim.BulletID)
	}

	res, err := r.arena.ApplyDamage(claim.TargetID, claim.ShooterID, claim.Damage)
	if err != nil {
		return Confirmation{}, err
	}
	r.reconciled[claim.BulletID] = now

	conf := Confirmation{
		Confirmed: protocol.BulletHitConfirmed{
			BulletID:   claim.BulletID,
			ShooterID:  claim.ShooterID,
			TargetID:   claim.TargetID,
			TargetName: res.TargetName,
			Position:   claim.Position,
			Damage:     claim.Damage,
		},
		Health: protocol.PlayerHealthUpdate{ID: claim.TargetID, Health: res.NewHealth},
	}
	if res.Killed {
		conf.Killed = &protocol.PlayerKilled{
			VictimID:   claim.TargetID,
			KillerID:   claim.ShooterID,
			VictimName: res.TargetName,
			KillerName: res.KillerName,
		}
	}
	return conf, nil
}

func (r *Reconciler) pruneLocked(now time.Time) {
	for id, at := range r.reconciled {
		if now.Sub(at) > r.retention {
			delete(r.reconciled, id)
		}
	}
}
