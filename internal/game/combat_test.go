package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanefield/arena/internal/protocol"
)

func testClaim(bulletID string) protocol.PlayerHit {
	return protocol.PlayerHit{
		RoomID:    "r",
		BulletID:  bulletID,
		TargetID:  "p1",
		ShooterID: "p0",
		Damage:    10,
		Position:  protocol.Vec3{X: 2, Z: 3},
	}
}

func TestConfirm_AppliesDamageOnce(t *testing.T) {
	a := newTestArena(2)
	r := NewReconciler(a, 10*time.Second)
	now := time.Now()

	conf, err := r.Confirm(testClaim("b1"), now)
	require.NoError(t, err)
	assert.Equal(t, 90, conf.Health.Health)
	assert.Equal(t, "Player1", conf.Confirmed.TargetName)
	assert.Nil(t, conf.Killed)

	// A duplicate claim for the same bullet is rejected and health holds.
	_, err = r.Confirm(testClaim("b1"), now.Add(time.Millisecond))
	require.Error(t, err)
	p, _ := a.Get("p1")
	assert.Equal(t, 90, p.Health)
}

func TestConfirm_KillCarriesNames(t *testing.T) {
	a := newTestArena(2)
	r := NewReconciler(a, 10*time.Second)
	now := time.Now()

	for i := 0; i < 9; i++ {
		_, err := r.Confirm(testClaim(protocol.BulletID("p0", now.Add(time.Duration(i)*time.Millisecond))), now)
		require.NoError(t, err)
	}
	conf, err := r.Confirm(testClaim("final"), now)
	require.NoError(t, err)
	require.NotNil(t, conf.Killed)
	assert.Equal(t, "Player1", conf.Killed.VictimName)
	assert.Equal(t, "Player0", conf.Killed.KillerName)
	assert.Equal(t, 0, conf.Health.Health)
}

func TestConfirm_DepartedTargetRejected(t *testing.T) {
	a := newTestArena(2)
	r := NewReconciler(a, 10*time.Second)
	a.Remove("p1")

	_, err := r.Confirm(testClaim("b1"), time.Now())
	require.Error(t, err)
	assert.Equal(t, protocol.KindUnknownTarget, protocol.AsEvent(err).Kind)
}

func TestConfirm_RetentionPrunes(t *testing.T) {
	a := newTestArena(2)
	r := NewReconciler(a, 50*time.Millisecond)
	now := time.Now()

	_, err := r.Confirm(testClaim("b1"), now)
	require.NoError(t, err)

	// After retention the id is forgotten; the same bullet would land
	// again. The window equals the bullet lifetime, so a live bullet can
	// never outlast its dedupe entry.
	_, err = r.Confirm(testClaim("b1"), now.Add(100*time.Millisecond))
	require.NoError(t, err)
	p, _ := a.Get("p1")
	assert.Equal(t, 80, p.Health)
}
