// Package game holds the in-match state: the player-state arena with its
// reducers, spawn selection, combat reconciliation, respawn scheduling,
// and the broadcast tick loop.
package game

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lanefield/arena/internal/protocol"
)

// Layout is an arena definition: its name, a square half-extent used to
// sanity-check spawn points, and the spawn positions themselves.
type Layout struct {
	Name string `yaml:"name"`
	// HalfExtent is the distance from arena center to each wall.
	HalfExtent  float64         `yaml:"half_extent"`
	SpawnPoints []protocol.Vec3 `yaml:"spawn_points"`
}

// LoadLayout reads an arena layout from a YAML file.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns a validated Layout or a non-nil error.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("reading arena layout: %w", err)
	}
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("parsing arena layout %s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, fmt.Errorf("arena layout %s: %w", path, err)
	}
	return l, nil
}

// Validate checks the layout invariants.
//
// Postcondition: Returns nil when the layout can seat a full room.
func (l Layout) Validate() error {
	if len(l.SpawnPoints) < 2 {
		return fmt.Errorf("need at least 2 spawn points, have %d", len(l.SpawnPoints))
	}
	if l.HalfExtent <= 0 {
		return fmt.Errorf("half_extent must be positive, got %v", l.HalfExtent)
	}
	for i, p := range l.SpawnPoints {
		if math.Abs(p.X) > l.HalfExtent || math.Abs(p.Z) > l.HalfExtent {
			return fmt.Errorf("spawn point %d (%v) is outside the arena", i, p)
		}
	}
	return nil
}

// DefaultLayout returns the built-in arena: eight spawn points on a ring,
// enough for the largest room the protocol allows.
func DefaultLayout() Layout {
	const radius = 18.0
	points := make([]protocol.Vec3, 8)
	for i := range points {
		angle := float64(i) * math.Pi / 4
		points[i] = protocol.Vec3{
			X: math.Round(radius*math.Cos(angle)*100) / 100,
			Z: math.Round(radius*math.Sin(angle)*100) / 100,
		}
	}
	return Layout{Name: "ring", HalfExtent: 25, SpawnPoints: points}
}

// SpawnPicker hands out spawn positions. Initial seating is by index so
// every member starts at a distinct point; respawns draw a random point
// different from the victim's last one.
type SpawnPicker struct {
	mu     sync.Mutex
	layout Layout
	rng    *rand.Rand
}

// NewSpawnPicker creates a picker over the given layout.
//
// Precondition: layout must have passed Validate.
func NewSpawnPicker(layout Layout, seed int64) *SpawnPicker {
	return &SpawnPicker{layout: layout, rng: rand.New(rand.NewSource(seed))}
}

// At returns the spawn position for a seating index, wrapping past the
// table size.
func (s *SpawnPicker) At(index int) protocol.Vec3 {
	points := s.layout.SpawnPoints
	return points[((index%len(points))+len(points))%len(points)]
}

// Fresh returns a random spawn index different from previous, and its
// position.
//
// Postcondition: the returned index differs from previous whenever the
// layout has more than one point.
func (s *SpawnPicker) Fresh(previous int) (int, protocol.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.layout.SpawnPoints)
	idx := s.rng.Intn(n)
	if idx == ((previous%n)+n)%n {
		idx = (idx + 1) % n
	}
	return idx, s.layout.SpawnPoints[idx]
}

// Points returns the number of spawn points in the layout.
func (s *SpawnPicker) Points() int {
	return len(s.layout.SpawnPoints)
}
