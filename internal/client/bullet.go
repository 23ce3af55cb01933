package client

import (
	"math"
	"sync"
	"time"

	"github.com/lanefield/arena/internal/protocol"
)

// HitRadius is the target sphere radius used for client-side hit
// detection, in room-scale units.
const HitRadius = 1.0

// bullet is one in-flight projectile owned by the local player.
type bullet struct {
	id        string
	position  protocol.Vec3
	direction protocol.Vec3
	firedAt   time.Time
	updatedAt time.Time
	lastEmit  time.Time
}

// TrackerConfig carries the bullet simulation tunables.
type TrackerConfig struct {
	// Speed is the travel speed in room-scale units/second.
	Speed float64
	// Lifetime discards unconfirmed bullets after this long.
	Lifetime time.Duration
	// EmitInterval is the bullet-position report cadence.
	EmitInterval time.Duration
}

// TickResult is what one simulation step produced: live-trajectory
// samples due for emission and candidate hit claims for the server to
// arbitrate.
type TickResult struct {
	Emissions []protocol.BulletPosition
	Claims    []protocol.PlayerHit
}

// BulletTracker simulates the local player's bullets between frames.
// Hits are detected by sweeping each bullet's travel segment against
// target spheres; a contact yields a claim, never a local health
// mutation. A claimed or expired bullet is discarded.
type BulletTracker struct {
	cfg     TrackerConfig
	ownerID string

	mu      sync.Mutex
	bullets map[string]*bullet
}

// NewBulletTracker creates a tracker for the given shooter.
//
// Precondition: cfg.Speed and cfg.Lifetime must be positive.
func NewBulletTracker(ownerID string, cfg TrackerConfig) *BulletTracker {
	return &BulletTracker{
		cfg:     cfg,
		ownerID: ownerID,
		bullets: make(map[string]*bullet),
	}
}

// Fire spawns a bullet and returns the announcement to send.
//
// Postcondition: the bullet id is derived from the shooter id and fire
// time, unique without coordination.
func (t *BulletTracker) Fire(origin, direction protocol.Vec3, now time.Time) protocol.PlayerShot {
	dir := normalize(direction)
	shot := protocol.PlayerShot{
		BulletID:  protocol.BulletID(t.ownerID, now),
		ShooterID: t.ownerID,
		Position:  origin,
		Direction: dir,
	}
	t.mu.Lock()
	t.bullets[shot.BulletID] = &bullet{
		id:        shot.BulletID,
		position:  origin,
		direction: dir,
		firedAt:   now,
		updatedAt: now,
		lastEmit:  now,
	}
	t.mu.Unlock()
	return shot
}

// Tick advances every bullet to now, sweeping travel segments against
// the given targets.
//
// Postcondition: a bullet contributes at most one claim ever; expired
// and claimed bullets are removed.
func (t *BulletTracker) Tick(now time.Time, targets []protocol.PlayerSnapshot) TickResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res TickResult
	for id, b := range t.bullets {
		if now.Sub(b.firedAt) > t.cfg.Lifetime {
			delete(t.bullets, id)
			continue
		}

		dt := now.Sub(b.updatedAt).Seconds()
		if dt < 0 {
			dt = 0
		}
		b.updatedAt = now

		from := b.position
		b.position = advance(from, b.direction, t.cfg.Speed*dt)

		if target, hit := t.sweep(from, b.position, targets); hit {
			res.Claims = append(res.Claims, protocol.PlayerHit{
				BulletID:  b.id,
				TargetID:  target.ID,
				ShooterID: t.ownerID,
				Position:  b.position,
			})
			delete(t.bullets, id)
			continue
		}

		if now.Sub(b.lastEmit) >= t.cfg.EmitInterval {
			b.lastEmit = now
			res.Emissions = append(res.Emissions, protocol.BulletPosition{
				BulletID:  b.id,
				ShooterID: t.ownerID,
				Position:  b.position,
			})
		}
	}
	return res
}

// InFlight returns the number of live bullets.
func (t *BulletTracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bullets)
}

// sweep finds the first target whose sphere intersects the travel
// segment. The local player is never a target of their own bullets.
func (t *BulletTracker) sweep(from, to protocol.Vec3, targets []protocol.PlayerSnapshot) (protocol.PlayerSnapshot, bool) {
	best := math.Inf(1)
	var hit protocol.PlayerSnapshot
	found := false
	for _, target := range targets {
		if target.ID == t.ownerID {
			continue
		}
		d, ok := segmentSphere(from, to, target.Position, HitRadius)
		if ok && d < best {
			best = d
			hit = target
			found = true
		}
	}
	return hit, found
}

// segmentSphere reports whether the segment from→to passes within
// radius of center, returning the entry distance along the segment.
func segmentSphere(from, to, center protocol.Vec3, radius float64) (float64, bool) {
	seg := sub(to, from)
	length := math.Sqrt(dot(seg, seg))
	if length == 0 {
		if math.Sqrt(dot(sub(center, from), sub(center, from))) <= radius {
			return 0, true
		}
		return 0, false
	}

	// Project the center onto the segment and clamp to its extent.
	dir := scale(seg, 1/length)
	proj := dot(sub(center, from), dir)
	if proj < 0 {
		proj = 0
	} else if proj > length {
		proj = length
	}
	closest := advance(from, dir, proj)
	if math.Sqrt(dot(sub(center, closest), sub(center, closest))) > radius {
		return 0, false
	}
	return proj, true
}

func normalize(v protocol.Vec3) protocol.Vec3 {
	length := math.Sqrt(dot(v, v))
	if length == 0 {
		return protocol.Vec3{Z: 1}
	}
	return scale(v, 1/length)
}

func advance(p, dir protocol.Vec3, dist float64) protocol.Vec3 {
	return protocol.Vec3{X: p.X + dir.X*dist, Y: p.Y + dir.Y*dist, Z: p.Z + dir.Z*dist}
}

func sub(a, b protocol.Vec3) protocol.Vec3 {
	return protocol.Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func scale(v protocol.Vec3, s float64) protocol.Vec3 {
	return protocol.Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func dot(a, b protocol.Vec3) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}
