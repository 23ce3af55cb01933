package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lanefield/arena/internal/config"
	"github.com/lanefield/arena/internal/game"
	"github.com/lanefield/arena/internal/protocol"
)

type sentEvent struct {
	event   protocol.Event
	payload any
}

// fakePeer records everything the dispatcher sends it.
type fakePeer struct {
	id     string
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakePeer) ID() string { return f.id }

func (f *fakePeer) Send(event protocol.Event, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{event: event, payload: payload})
	return nil
}

func (f *fakePeer) byEvent(event protocol.Event) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.events {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakePeer) lastOf(t *testing.T, event protocol.Event) any {
	t.Helper()
	got := f.byEvent(event)
	require.NotEmpty(t, got, "expected peer %s to receive %s", f.id, event)
	return got[len(got)-1]
}

func (f *fakePeer) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	spawns := game.NewSpawnPicker(game.DefaultLayout(), 1)
	return NewDispatcher(zaptest.NewLogger(t), config.Default().Game, spawns)
}

func connect(t *testing.T, d *Dispatcher, id, name string) *fakePeer {
	t.Helper()
	peer := &fakePeer{id: id}
	require.NoError(t, d.Connect(peer, protocol.Identity{ID: id, Name: name}))
	return peer
}

func dispatch(t *testing.T, d *Dispatcher, peer *fakePeer, event protocol.Event, payload any) {
	t.Helper()
	data, err := protocol.Encode(event, payload)
	require.NoError(t, err)
	d.Dispatch(peer, data)
}

// startMatch drives two peers through create, accept, and start, and
// returns the room id. Event logs are cleared afterwards so tests see
// only match traffic.
func startMatch(t *testing.T, d *Dispatcher, host, guest *fakePeer) string {
	t.Helper()
	dispatch(t, d, host, protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       protocol.RoomConfig{RoomName: "duel", MaxPlayers: 2},
		InvitedPlayerIDs: []string{guest.id},
	})
	created := host.lastOf(t, protocol.EventGameCreated).(protocol.GameCreated)
	dispatch(t, d, guest, protocol.EventAcceptInvite, protocol.InviteReply{RoomID: created.RoomID})
	dispatch(t, d, host, protocol.EventStartGame, protocol.StartGame{RoomID: created.RoomID})
	require.NotEmpty(t, host.byEvent(protocol.EventGameStarting))
	host.clear()
	guest.clear()
	return created.RoomID
}

func hit(roomID, bulletID, targetID string) protocol.PlayerHit {
	return protocol.PlayerHit{
		RoomID:   roomID,
		BulletID: bulletID,
		TargetID: targetID,
		Damage:   10,
	}
}

func TestConnect_SendsRosterAndAnnouncesArrival(t *testing.T) {
	d := newTestDispatcher(t)
	alice := connect(t, d, "a", "alice")

	roster := alice.lastOf(t, protocol.EventUsersList).([]protocol.Identity)
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].Name)

	bob := connect(t, d, "b", "bob")
	joined := alice.lastOf(t, protocol.EventUserJoined).(protocol.Identity)
	assert.Equal(t, "b", joined.ID)
	assert.Equal(t, protocol.StatusOnline, joined.Status)

	roster = bob.lastOf(t, protocol.EventUsersList).([]protocol.Identity)
	assert.Len(t, roster, 2)
}

func TestConnect_DuplicateIdentityRejected(t *testing.T) {
	d := newTestDispatcher(t)
	connect(t, d, "a", "alice")
	err := d.Connect(&fakePeer{id: "a"}, protocol.Identity{ID: "a", Name: "impostor"})
	require.Error(t, err)
}

func TestDisconnect_AnnouncesDeparture(t *testing.T) {
	d := newTestDispatcher(t)
	alice := connect(t, d, "a", "alice")
	connect(t, d, "b", "bob")

	d.Disconnect("b")
	left := alice.lastOf(t, protocol.EventUserLeft).(protocol.UserLeft)
	assert.Equal(t, "b", left.ID)
}

func TestCreateGame_FansOutInvites(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")

	dispatch(t, d, host, protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       protocol.RoomConfig{RoomName: "duel", MaxPlayers: 2},
		InvitedPlayerIDs: []string{"g"},
	})

	created := host.lastOf(t, protocol.EventGameCreated).(protocol.GameCreated)
	assert.Equal(t, "duel", created.Room.Name)
	assert.Equal(t, "h", created.Room.HostID)

	invite := guest.lastOf(t, protocol.EventGameInvite).(protocol.GameInvite)
	assert.Equal(t, created.RoomID, invite.RoomID)
	assert.Equal(t, "hostess", invite.Host)
}

func TestCreateGame_OfflineInviteeRejected(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")

	dispatch(t, d, host, protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       protocol.RoomConfig{RoomName: "duel", MaxPlayers: 2},
		InvitedPlayerIDs: []string{"ghost"},
	})

	errEvt := host.lastOf(t, protocol.EventError).(protocol.ErrorEvent)
	assert.Equal(t, protocol.KindNotOnline, errEvt.Kind)
	assert.Empty(t, host.byEvent(protocol.EventGameCreated))
}

func TestAcceptInvite_JoinsAndAnnounces(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")

	dispatch(t, d, host, protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       protocol.RoomConfig{RoomName: "duel", MaxPlayers: 2},
		InvitedPlayerIDs: []string{"g"},
	})
	created := host.lastOf(t, protocol.EventGameCreated).(protocol.GameCreated)

	dispatch(t, d, guest, protocol.EventAcceptInvite, protocol.InviteReply{RoomID: created.RoomID})

	joined := guest.lastOf(t, protocol.EventRoomJoined).(protocol.RoomJoined)
	require.Len(t, joined.Room.Members, 2)

	arrival := host.lastOf(t, protocol.EventPlayerJoinedRoom).(protocol.PlayerJoinedRoom)
	assert.Equal(t, "g", arrival.Player.ID)
}

func TestAcceptInvite_SecondAcceptIsStale(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")

	dispatch(t, d, host, protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       protocol.RoomConfig{RoomName: "duel", MaxPlayers: 2},
		InvitedPlayerIDs: []string{"g"},
	})
	created := host.lastOf(t, protocol.EventGameCreated).(protocol.GameCreated)

	dispatch(t, d, guest, protocol.EventAcceptInvite, protocol.InviteReply{RoomID: created.RoomID})
	dispatch(t, d, guest, protocol.EventAcceptInvite, protocol.InviteReply{RoomID: created.RoomID})

	errEvt := guest.lastOf(t, protocol.EventError).(protocol.ErrorEvent)
	assert.Equal(t, protocol.KindStaleInvite, errEvt.Kind)
}

func TestStartGame_GuestRejected(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")

	dispatch(t, d, host, protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       protocol.RoomConfig{RoomName: "duel", MaxPlayers: 2},
		InvitedPlayerIDs: []string{"g"},
	})
	created := host.lastOf(t, protocol.EventGameCreated).(protocol.GameCreated)
	dispatch(t, d, guest, protocol.EventAcceptInvite, protocol.InviteReply{RoomID: created.RoomID})

	dispatch(t, d, guest, protocol.EventStartGame, protocol.StartGame{RoomID: created.RoomID})

	errEvt := guest.lastOf(t, protocol.EventError).(protocol.ErrorEvent)
	assert.Equal(t, protocol.KindNotHost, errEvt.Kind)
	assert.Empty(t, host.byEvent(protocol.EventGameStarting))
}

func TestStartGame_BroadcastsAndMarksPlaying(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")
	lobby := connect(t, d, "l", "lurker")

	dispatch(t, d, host, protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       protocol.RoomConfig{RoomName: "duel", MaxPlayers: 2},
		InvitedPlayerIDs: []string{"g"},
	})
	created := host.lastOf(t, protocol.EventGameCreated).(protocol.GameCreated)
	dispatch(t, d, guest, protocol.EventAcceptInvite, protocol.InviteReply{RoomID: created.RoomID})
	dispatch(t, d, host, protocol.EventStartGame, protocol.StartGame{RoomID: created.RoomID})

	for _, p := range []*fakePeer{host, guest} {
		starting := p.lastOf(t, protocol.EventGameStarting).(protocol.GameStarting)
		assert.Equal(t, created.RoomID, starting.RoomID)
	}

	// The lobby learns both members went playing.
	updates := lobby.byEvent(protocol.EventUserStatusUpdate)
	playing := map[string]bool{}
	for _, u := range updates {
		su := u.(protocol.UserStatusUpdate)
		if su.Status == protocol.StatusPlaying {
			playing[su.ID] = true
		}
	}
	assert.True(t, playing["h"])
	assert.True(t, playing["g"])
}

func TestPlayerMove_ShowsUpInNextSnapshot(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")
	roomID := startMatch(t, d, host, guest)

	dispatch(t, d, host, protocol.EventPlayerMove, protocol.PlayerMove{
		RoomID:   roomID,
		Position: protocol.Vec3{X: 3, Z: -4},
		Rotation: 1.5,
	})
	d.roomTick(roomID, time.Now())

	snapshot := guest.lastOf(t, protocol.EventUpdatePositions).([]protocol.PlayerSnapshot)
	require.Len(t, snapshot, 2)
	var found bool
	for _, p := range snapshot {
		if p.ID == "h" {
			found = true
			assert.Equal(t, 3.0, p.Position.X)
			assert.Equal(t, 1.5, p.Rotation)
		}
	}
	assert.True(t, found)
}

func TestPlayerShot_RelayedToOthersOnly(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")
	startMatch(t, d, host, guest)

	dispatch(t, d, host, protocol.EventPlayerShot, protocol.PlayerShot{
		BulletID:  protocol.BulletID("h", time.Now()),
		Direction: protocol.Vec3{Z: 1},
	})

	shots := guest.byEvent(protocol.EventPlayerShot)
	require.Len(t, shots, 1)
	assert.Equal(t, "h", shots[0].(protocol.PlayerShot).ShooterID, "shooter id comes from the connection")
	assert.Empty(t, host.byEvent(protocol.EventPlayerShot), "no echo to the shooter")
}

func TestPlayerHit_ConfirmsOnceThenStale(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")
	roomID := startMatch(t, d, host, guest)

	claim := hit(roomID, "h-1", "g")
	dispatch(t, d, host, protocol.EventPlayerHit, claim)

	for _, p := range []*fakePeer{host, guest} {
		conf := p.lastOf(t, protocol.EventBulletHitConfirmed).(protocol.BulletHitConfirmed)
		assert.Equal(t, "h-1", conf.BulletID)
		health := p.lastOf(t, protocol.EventPlayerHealthUpdate).(protocol.PlayerHealthUpdate)
		assert.Equal(t, "g", health.ID)
		assert.Equal(t, 90, health.Health)
	}

	// The same bullet id reconciled twice must not double-apply.
	dispatch(t, d, host, protocol.EventPlayerHit, claim)
	errEvt := host.lastOf(t, protocol.EventError).(protocol.ErrorEvent)
	assert.Equal(t, protocol.KindStaleClaim, errEvt.Kind)
	assert.Len(t, guest.byEvent(protocol.EventPlayerHealthUpdate), 1)
}

func TestPlayerHit_KillBroadcastAndDelayedRespawn(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")
	roomID := startMatch(t, d, host, guest)

	for i := 0; i < 10; i++ {
		dispatch(t, d, host, protocol.EventPlayerHit,
			hit(roomID, protocol.BulletID("h", time.UnixMilli(int64(i))), "g"))
	}

	killed := guest.lastOf(t, protocol.EventPlayerKilled).(protocol.PlayerKilled)
	assert.Equal(t, "g", killed.VictimID)
	assert.Equal(t, "h", killed.KillerID)
	assert.Equal(t, "hostess", killed.KillerName)

	// Death never ends the match: the room stays open and the victim
	// respawns after the delay.
	assert.Empty(t, guest.byEvent(protocol.EventRoomClosed))

	d.roomTick(roomID, time.Now())
	assert.Empty(t, guest.byEvent(protocol.EventPlayerRespawn), "respawn waits out the delay")

	d.roomTick(roomID, time.Now().Add(3*time.Second))
	respawn := guest.lastOf(t, protocol.EventPlayerRespawn).(protocol.PlayerRespawn)
	assert.Equal(t, "g", respawn.ID)
	assert.Equal(t, game.MaxHealth, respawn.Health)
}

func TestPlayerHit_DeadTargetRejected(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")
	roomID := startMatch(t, d, host, guest)

	for i := 0; i < 10; i++ {
		dispatch(t, d, host, protocol.EventPlayerHit,
			hit(roomID, protocol.BulletID("h", time.UnixMilli(int64(i))), "g"))
	}
	host.clear()

	dispatch(t, d, host, protocol.EventPlayerHit, hit(roomID, "h-late", "g"))
	errEvt := host.lastOf(t, protocol.EventError).(protocol.ErrorEvent)
	assert.Equal(t, protocol.KindUnknownTarget, errEvt.Kind)
}

func TestHostDisconnect_WhileWaitingClosesRoom(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")

	dispatch(t, d, host, protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       protocol.RoomConfig{RoomName: "duel", MaxPlayers: 2},
		InvitedPlayerIDs: []string{"g"},
	})
	created := host.lastOf(t, protocol.EventGameCreated).(protocol.GameCreated)
	dispatch(t, d, guest, protocol.EventAcceptInvite, protocol.InviteReply{RoomID: created.RoomID})

	d.Disconnect("h")

	closed := guest.lastOf(t, protocol.EventRoomClosed).(protocol.RoomClosed)
	assert.Equal(t, "host left the room", closed.Reason)
	assert.Empty(t, closed.WinnerID)
}

func TestMidMatchDisconnect_DeclaresSoleSurvivor(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	guest := connect(t, d, "g", "guest")
	startMatch(t, d, host, guest)

	d.Disconnect("g")

	left := host.lastOf(t, protocol.EventPlayerLeft).(protocol.PlayerLeft)
	assert.Equal(t, "g", left.ID)

	closed := host.lastOf(t, protocol.EventRoomClosed).(protocol.RoomClosed)
	assert.Equal(t, "h", closed.WinnerID)
	assert.Equal(t, "hostess", closed.WinnerName)

	// Back in the lobby the survivor reads as online again.
	status := host.lastOf(t, protocol.EventUserStatusUpdate).(protocol.UserStatusUpdate)
	assert.Equal(t, "h", status.ID)
	assert.Equal(t, protocol.StatusOnline, status.Status)
}

func TestThreePlayerMatch_SurvivesFirstDeparture(t *testing.T) {
	d := newTestDispatcher(t)
	host := connect(t, d, "h", "hostess")
	b := connect(t, d, "b", "bravo")
	c := connect(t, d, "c", "charlie")

	dispatch(t, d, host, protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       protocol.RoomConfig{RoomName: "brawl", MaxPlayers: 3},
		InvitedPlayerIDs: []string{"b", "c"},
	})
	created := host.lastOf(t, protocol.EventGameCreated).(protocol.GameCreated)
	dispatch(t, d, b, protocol.EventAcceptInvite, protocol.InviteReply{RoomID: created.RoomID})
	dispatch(t, d, c, protocol.EventAcceptInvite, protocol.InviteReply{RoomID: created.RoomID})
	dispatch(t, d, host, protocol.EventStartGame, protocol.StartGame{RoomID: created.RoomID})
	host.clear()
	b.clear()
	c.clear()

	d.Disconnect("c")
	assert.Empty(t, host.byEvent(protocol.EventRoomClosed), "two players remain")

	d.Disconnect("b")
	closed := host.lastOf(t, protocol.EventRoomClosed).(protocol.RoomClosed)
	assert.Equal(t, "h", closed.WinnerID)
}

func TestDispatch_MalformedEnvelopeAnswersError(t *testing.T) {
	d := newTestDispatcher(t)
	peer := connect(t, d, "a", "alice")

	d.Dispatch(peer, []byte(`{"event":"no-such-event","payload":{}}`))
	errEvt := peer.lastOf(t, protocol.EventError).(protocol.ErrorEvent)
	assert.Equal(t, protocol.KindMalformedPayload, errEvt.Kind)

	d.Dispatch(peer, []byte(`not json`))
	assert.Len(t, peer.byEvent(protocol.EventError), 2)
}

func TestDispatch_PingAnsweredWithPong(t *testing.T) {
	d := newTestDispatcher(t)
	peer := connect(t, d, "a", "alice")

	dispatch(t, d, peer, protocol.EventPingCheck, nil)
	require.Len(t, peer.byEvent(protocol.EventPongCheck), 1)
}

func TestMoveOutsideMatch_Rejected(t *testing.T) {
	d := newTestDispatcher(t)
	peer := connect(t, d, "a", "alice")

	dispatch(t, d, peer, protocol.EventPlayerMove, protocol.PlayerMove{RoomID: "nowhere"})
	errEvt := peer.lastOf(t, protocol.EventError).(protocol.ErrorEvent)
	assert.Equal(t, protocol.KindUnknownRoom, errEvt.Kind)
}
