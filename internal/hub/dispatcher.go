package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lanefield/arena/internal/config"
	"github.com/lanefield/arena/internal/game"
	"github.com/lanefield/arena/internal/presence"
	"github.com/lanefield/arena/internal/protocol"
	"github.com/lanefield/arena/internal/room"
)

// Dispatcher is the single authority over presence, rooms, and matches.
// Each connection's events arrive serially (one read loop per
// connection), so a handler always runs to completion before the next
// event from the same peer; events from different peers interleave, and
// every room-level mutation is a critical section inside its owner.
type Dispatcher struct {
	logger   *zap.Logger
	cfg      config.GameConfig
	spawns   *game.SpawnPicker
	presence *presence.Registry
	rooms    *room.Manager
	ticker   *game.Ticker

	mu      sync.Mutex
	peers   map[string]Peer
	matches map[string]*game.Match
}

// NewDispatcher wires the session-server core.
//
// Precondition: logger and spawns must be non-nil; cfg must have passed
// config validation.
func NewDispatcher(logger *zap.Logger, cfg config.GameConfig, spawns *game.SpawnPicker) *Dispatcher {
	reg := presence.NewRegistry()
	return &Dispatcher{
		logger:   logger,
		cfg:      cfg,
		spawns:   spawns,
		presence: reg,
		rooms:    room.NewManager(reg),
		ticker:   game.NewTicker(cfg.SnapshotInterval),
		peers:    make(map[string]Peer),
		matches:  make(map[string]*game.Match),
	}
}

// Start launches the broadcast tick loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ticker.Start(ctx)
}

// Stop halts the broadcast tick loop.
func (d *Dispatcher) Stop() {
	d.ticker.Stop()
}

// Connect registers a peer's identity with the lobby: the newcomer gets
// the full roster snapshot, everyone else learns about the arrival.
//
// Precondition: identity.ID must equal peer.ID().
func (d *Dispatcher) Connect(peer Peer, identity protocol.Identity) error {
	stored, err := d.presence.Register(identity)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.peers[peer.ID()] = peer
	d.mu.Unlock()

	d.send(peer.ID(), protocol.EventUsersList, d.presence.List())
	d.broadcastExcept(peer.ID(), protocol.EventUserJoined, stored)

	d.logger.Info("player connected",
		zap.String("id", stored.ID),
		zap.String("name", stored.Name),
		zap.Int("online", d.presence.Count()),
	)
	return nil
}

// Disconnect tears down a departed peer: room membership cascades, the
// lobby roster shrinks, and a mid-match departure may resolve the win
// condition. Disconnecting an unknown peer is a no-op.
func (d *Dispatcher) Disconnect(peerID string) {
	if dep, wasMember := d.rooms.Leave(peerID); wasMember {
		d.handleDeparture(peerID, dep)
	}

	if d.presence.Unregister(peerID) {
		d.broadcastExcept(peerID, protocol.EventUserLeft, protocol.UserLeft{ID: peerID})
		d.logger.Info("player disconnected", zap.String("id", peerID))
	}

	d.mu.Lock()
	delete(d.peers, peerID)
	d.mu.Unlock()
}

// Dispatch handles one inbound envelope from a peer. Malformed payloads
// and domain rejections are answered with an error event; state is
// unchanged on any error.
func (d *Dispatcher) Dispatch(peer Peer, raw []byte) {
	event, payload, err := protocol.Decode(raw)
	if err != nil {
		d.logger.Warn("rejecting inbound event",
			zap.String("peer", peer.ID()),
			zap.String("event", string(event)),
			zap.Error(err),
		)
		d.sendError(peer, err)
		return
	}

	switch event {
	case protocol.EventPingCheck:
		// Latency probes are answered immediately, ahead of any queue.
		if err := peer.Send(protocol.EventPongCheck, nil); err != nil {
			d.logger.Debug("pong send failed", zap.String("peer", peer.ID()), zap.Error(err))
		}
		return
	case protocol.EventCreateGame:
		err = d.handleCreateGame(peer, payload.(protocol.CreateGame))
	case protocol.EventAcceptInvite:
		err = d.handleAcceptInvite(peer, payload.(protocol.InviteReply))
	case protocol.EventRejectInvite:
		err = d.rooms.Reject(payload.(protocol.InviteReply).RoomID, peer.ID())
	case protocol.EventStartGame:
		err = d.handleStartGame(peer, payload.(protocol.StartGame))
	case protocol.EventPlayerMove:
		err = d.handleMove(peer, payload.(protocol.PlayerMove))
	case protocol.EventPlayerShot:
		err = d.handleShot(peer, payload.(protocol.PlayerShot))
	case protocol.EventBulletPosition:
		err = d.handleBulletPosition(peer, payload.(protocol.BulletPosition))
	case protocol.EventPlayerHit:
		err = d.handleHit(peer, payload.(protocol.PlayerHit))
	case protocol.EventUserOnline:
		// Identity is bound at connect time; a repeat announcement from a
		// registered peer is harmless.
		return
	default:
		err = protocol.Errorf(protocol.KindMalformedPayload,
			"event %s is not a client intent", event)
	}

	if err != nil {
		d.logger.Debug("intent rejected",
			zap.String("peer", peer.ID()),
			zap.String("event", string(event)),
			zap.Error(err),
		)
		d.sendError(peer, err)
	}
}

func (d *Dispatcher) handleCreateGame(peer Peer, req protocol.CreateGame) error {
	created, err := d.rooms.Create(peer.ID(), req.RoomConfig, req.InvitedPlayerIDs)
	if err != nil {
		return err
	}

	d.send(peer.ID(), protocol.EventGameCreated, protocol.GameCreated{
		RoomID: created.Room.ID,
		Room:   created.Room,
	})
	for i, inviteeID := range req.InvitedPlayerIDs {
		d.send(inviteeID, protocol.EventGameInvite, created.Invites[i])
	}

	d.logger.Info("room created",
		zap.String("room", created.Room.ID),
		zap.String("host", peer.ID()),
		zap.Int("invited", len(created.Invites)),
	)
	return nil
}

func (d *Dispatcher) handleAcceptInvite(peer Peer, req protocol.InviteReply) error {
	joined, err := d.rooms.Accept(req.RoomID, peer.ID())
	if err != nil {
		return err
	}

	d.send(peer.ID(), protocol.EventRoomJoined, protocol.RoomJoined{
		RoomID: joined.Room.ID,
		Room:   joined.Room,
	})
	announcement := protocol.PlayerJoinedRoom{Player: joined.Player, Room: joined.Room}
	for _, id := range joined.Others {
		d.send(id, protocol.EventPlayerJoinedRoom, announcement)
	}
	return nil
}

func (d *Dispatcher) handleStartGame(peer Peer, req protocol.StartGame) error {
	started, err := d.rooms.Start(req.RoomID, peer.ID())
	if err != nil {
		return err
	}

	match := game.NewMatch(started.RoomID, started.Members, d.spawns, game.MatchConfig{
		BulletLifetime: d.cfg.BulletLifetime,
		RespawnDelay:   d.cfg.RespawnDelay,
	})
	d.mu.Lock()
	d.matches[started.RoomID] = match
	d.mu.Unlock()
	d.ticker.Register(started.RoomID, func(now time.Time) { d.roomTick(started.RoomID, now) })

	announcement := protocol.GameStarting{RoomID: started.RoomID}
	for _, member := range started.Members {
		d.send(member.ID, protocol.EventGameStarting, announcement)
		d.setStatus(member.ID, protocol.StatusPlaying)
	}

	d.logger.Info("match started",
		zap.String("room", started.RoomID),
		zap.Int("players", len(started.Members)),
	)
	return nil
}

func (d *Dispatcher) handleMove(peer Peer, mv protocol.PlayerMove) error {
	match, err := d.matchFor(peer.ID(), mv.RoomID)
	if err != nil {
		return err
	}
	// The sender is authoritative for its own transform; the arena just
	// folds the report in and the tick loop rebroadcasts it.
	match.Arena.ApplyMove(peer.ID(), mv, time.Now())
	return nil
}

func (d *Dispatcher) handleShot(peer Peer, shot protocol.PlayerShot) error {
	roomID, ok := d.rooms.RoomOf(peer.ID())
	if !ok {
		return protocol.Errorf(protocol.KindUnknownRoom, "not in a room")
	}
	shot.ShooterID = peer.ID()
	d.relayToOthers(roomID, peer.ID(), protocol.EventPlayerShot, shot)
	return nil
}

func (d *Dispatcher) handleBulletPosition(peer Peer, bp protocol.BulletPosition) error {
	roomID, ok := d.rooms.RoomOf(peer.ID())
	if !ok {
		return protocol.Errorf(protocol.KindUnknownRoom, "not in a room")
	}
	bp.ShooterID = peer.ID()
	d.relayToOthers(roomID, peer.ID(), protocol.EventBulletPosition, bp)
	return nil
}

func (d *Dispatcher) handleHit(peer Peer, claim protocol.PlayerHit) error {
	match, err := d.matchFor(peer.ID(), claim.RoomID)
	if err != nil {
		return err
	}
	// The claim's shooter is always the reporting connection; clients
	// cannot claim on behalf of others.
	claim.ShooterID = peer.ID()
	claim.Damage = d.cfg.HitDamage

	conf, err := match.ConfirmHit(claim, time.Now())
	if err != nil {
		return err
	}

	members := d.rooms.Members(claim.RoomID)
	for _, id := range members {
		d.send(id, protocol.EventBulletHitConfirmed, conf.Confirmed)
		d.send(id, protocol.EventPlayerHealthUpdate, conf.Health)
	}
	if conf.Killed != nil {
		for _, id := range members {
			d.send(id, protocol.EventPlayerKilled, *conf.Killed)
		}
		d.logger.Info("player killed",
			zap.String("room", claim.RoomID),
			zap.String("victim", conf.Killed.VictimID),
			zap.String("killer", conf.Killed.KillerID),
		)
	}
	return nil
}

// roomTick is the server-owned broadcast cadence for one active room:
// the batched position snapshot, then any due respawns.
func (d *Dispatcher) roomTick(roomID string, now time.Time) {
	d.mu.Lock()
	match, ok := d.matches[roomID]
	d.mu.Unlock()
	if !ok {
		return
	}

	members := d.rooms.Members(roomID)
	snapshot := match.Arena.Snapshot()
	for _, id := range members {
		d.send(id, protocol.EventUpdatePositions, snapshot)
	}

	for _, respawn := range match.DueRespawns(now) {
		for _, id := range members {
			d.send(id, protocol.EventPlayerRespawn, respawn)
		}
	}
}

// handleDeparture applies the room-side consequences of one member
// leaving.
func (d *Dispatcher) handleDeparture(peerID string, dep room.Departure) {
	if dep.Closed {
		d.finishRoom(dep.RoomID, dep.Notify, protocol.RoomClosed{Reason: dep.Reason})
		return
	}

	for _, id := range dep.Remaining {
		d.send(id, protocol.EventPlayerLeft, protocol.PlayerLeft{ID: peerID})
	}

	if !dep.WasActive {
		return
	}
	d.mu.Lock()
	match, ok := d.matches[dep.RoomID]
	d.mu.Unlock()
	if !ok {
		return
	}
	match.RemovePlayer(peerID)

	if winner, won := match.SoleSurvivor(); won {
		notify, err := d.rooms.Close(dep.RoomID)
		if err != nil {
			return
		}
		d.logger.Info("match resolved",
			zap.String("room", dep.RoomID),
			zap.String("winner", winner.ID),
		)
		d.finishRoom(dep.RoomID, notify, protocol.RoomClosed{
			Reason:     "match over",
			WinnerID:   winner.ID,
			WinnerName: winner.Name,
		})
	}
}

// finishRoom broadcasts closure, drops the match, and restores member
// presence status.
func (d *Dispatcher) finishRoom(roomID string, notify []string, closed protocol.RoomClosed) {
	d.ticker.Unregister(roomID)
	d.mu.Lock()
	delete(d.matches, roomID)
	d.mu.Unlock()

	for _, id := range notify {
		d.send(id, protocol.EventRoomClosed, closed)
		d.setStatus(id, protocol.StatusOnline)
	}
}

// matchFor validates that peerID is in the named room and the room is
// mid-match.
func (d *Dispatcher) matchFor(peerID, roomID string) (*game.Match, error) {
	current, ok := d.rooms.RoomOf(peerID)
	if !ok || current != roomID {
		return nil, protocol.Errorf(protocol.KindUnknownRoom, "not a member of room %s", roomID)
	}
	d.mu.Lock()
	match, ok := d.matches[roomID]
	d.mu.Unlock()
	if !ok {
		return nil, protocol.Errorf(protocol.KindInvalidRoomState, "room %s has no running match", roomID)
	}
	return match, nil
}

// setStatus updates one identity's presence status and broadcasts the
// change. Unknown ids (already disconnected) are skipped silently.
func (d *Dispatcher) setStatus(id string, status protocol.Status) {
	if !d.presence.SetStatus(id, status) {
		return
	}
	d.broadcastExcept("", protocol.EventUserStatusUpdate, protocol.UserStatusUpdate{ID: id, Status: status})
}

func (d *Dispatcher) relayToOthers(roomID, exceptID string, event protocol.Event, payload any) {
	for _, id := range d.rooms.Members(roomID) {
		if id != exceptID {
			d.send(id, event, payload)
		}
	}
}

func (d *Dispatcher) send(peerID string, event protocol.Event, payload any) {
	d.mu.Lock()
	peer, ok := d.peers[peerID]
	d.mu.Unlock()
	if !ok {
		return
	}
	if err := peer.Send(event, payload); err != nil {
		d.logger.Debug("send failed",
			zap.String("peer", peerID),
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) broadcastExcept(exceptID string, event protocol.Event, payload any) {
	d.mu.Lock()
	targets := make([]Peer, 0, len(d.peers))
	for id, peer := range d.peers {
		if id != exceptID {
			targets = append(targets, peer)
		}
	}
	d.mu.Unlock()

	for _, peer := range targets {
		if err := peer.Send(event, payload); err != nil {
			d.logger.Debug("broadcast send failed",
				zap.String("peer", peer.ID()),
				zap.String("event", string(event)),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) sendError(peer Peer, err error) {
	if sendErr := peer.Send(protocol.EventError, protocol.AsEvent(err)); sendErr != nil {
		d.logger.Debug("error send failed", zap.String("peer", peer.ID()), zap.Error(sendErr))
	}
}
