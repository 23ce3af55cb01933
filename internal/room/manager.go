package room

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanefield/arena/internal/protocol"
)

// Presence is the subset of the presence registry the room manager needs
// to validate invitees and resolve display identities.
type Presence interface {
	IsOnline(id string) bool
	Get(id string) (protocol.Identity, bool)
}

// Manager owns all rooms and invites. Membership mutation is the critical
// section: every transition runs under one lock, so two accepts racing for
// the last slot resolve first-writer-wins.
//
// Invariant: a player id appears in at most one room's member list.
type Manager struct {
	mu       sync.Mutex
	presence Presence
	rooms    map[string]*Room
	// invites is roomID → inviteeID → invite.
	invites map[string]map[string]*Invite
	// memberRoom is playerID → roomID for every current member.
	memberRoom map[string]string
}

// NewManager creates an empty Manager backed by the given presence lookup.
//
// Precondition: presence must be non-nil.
func NewManager(presence Presence) *Manager {
	return &Manager{
		presence:   presence,
		rooms:      make(map[string]*Room),
		invites:    make(map[string]map[string]*Invite),
		memberRoom: make(map[string]string),
	}
}

// Created describes a successful room creation: the host ack and the
// per-invitee offers to dispatch.
type Created struct {
	Room    protocol.RoomSnapshot
	Invites []protocol.GameInvite
}

// Create opens a room hosted by hostID in waiting state with one pending
// invite per invitee.
//
// Precondition: hostID must be a registered identity.
// Postcondition: On success the room holds exactly the host and every
// invitee is online. On error no room exists.
func (m *Manager) Create(hostID string, cfg protocol.RoomConfig, invitees []string) (Created, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.MaxPlayers < MinPlayers || cfg.MaxPlayers > MaxPlayersLimit {
		return Created{}, protocol.Errorf(protocol.KindInvalidRoomState,
			"maxPlayers must be %d-%d, got %d", MinPlayers, MaxPlayersLimit, cfg.MaxPlayers)
	}
	if current, ok := m.memberRoom[hostID]; ok {
		return Created{}, protocol.Errorf(protocol.KindInvalidRoomState,
			"already a member of room %s", current)
	}
	for _, id := range invitees {
		if id == hostID {
			return Created{}, protocol.Errorf(protocol.KindInvalidRoomState,
				"cannot invite yourself")
		}
		if !m.presence.IsOnline(id) {
			return Created{}, protocol.Errorf(protocol.KindNotOnline,
				"player %s is not online", id)
		}
	}

	host, _ := m.presence.Get(hostID)
	r := &Room{
		ID:         uuid.New().String(),
		Name:       cfg.RoomName,
		HostID:     hostID,
		MaxPlayers: cfg.MaxPlayers,
		Members:    []string{hostID},
		State:      StateForming,
		CreatedAt:  time.Now(),
	}

	offers := make([]protocol.GameInvite, 0, len(invitees))
	pending := make(map[string]*Invite, len(invitees))
	for _, id := range invitees {
		pending[id] = &Invite{RoomID: r.ID, InviterID: hostID, InviteeID: id, Status: InvitePending}
		offers = append(offers, protocol.GameInvite{
			RoomID:   r.ID,
			RoomName: r.Name,
			Host:     host.Name,
			HostID:   hostID,
		})
	}

	// Invites are out; the room now waits for resolutions.
	r.State = StateWaiting
	m.rooms[r.ID] = r
	m.invites[r.ID] = pending
	m.memberRoom[hostID] = r.ID

	return Created{Room: r.snapshot(m.presence.Get), Invites: offers}, nil
}

// Joined describes a successful invite acceptance.
type Joined struct {
	Room   protocol.RoomSnapshot
	Player protocol.Identity
	// Others are the member ids that were already in the room.
	Others []string
}

// Accept resolves playerID's pending invite and adds them to the room.
// Stale invites, non-waiting rooms, and full rooms are rejected without
// state change; for the last slot the first accept under the lock wins.
func (m *Manager) Accept(roomID, playerID string) (Joined, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return Joined{}, protocol.Errorf(protocol.KindUnknownRoom, "room %s does not exist", roomID)
	}
	inv, ok := m.invites[roomID][playerID]
	if !ok || inv.Status != InvitePending {
		return Joined{}, protocol.Errorf(protocol.KindStaleInvite,
			"no pending invite for room %s", roomID)
	}
	if r.State != StateWaiting {
		return Joined{}, protocol.Errorf(protocol.KindInvalidRoomState,
			"room %s is %s, not waiting", roomID, r.State)
	}
	if r.Full() {
		return Joined{}, protocol.Errorf(protocol.KindRoomFull,
			"room %s already has %d players", roomID, len(r.Members))
	}
	if current, ok := m.memberRoom[playerID]; ok {
		return Joined{}, protocol.Errorf(protocol.KindInvalidRoomState,
			"already a member of room %s", current)
	}

	inv.Status = InviteAccepted
	others := append([]string(nil), r.Members...)
	r.Members = append(r.Members, playerID)
	m.memberRoom[playerID] = roomID

	player, _ := m.presence.Get(playerID)
	return Joined{Room: r.snapshot(m.presence.Get), Player: player, Others: others}, nil
}

// Reject marks playerID's pending invite rejected. Membership is
// unchanged.
func (m *Manager) Reject(roomID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[roomID][playerID]
	if !ok || inv.Status != InvitePending {
		return protocol.Errorf(protocol.KindStaleInvite, "no pending invite for room %s", roomID)
	}
	inv.Status = InviteRejected
	return nil
}

// Started describes a successful match start.
type Started struct {
	RoomID string
	// Members is the ordered roster at the moment the start was accepted.
	Members []protocol.Identity
}

// Start moves a waiting room to active. Host only, two members minimum.
// Outstanding invites expire: the roster is frozen once the match runs.
func (m *Manager) Start(roomID, callerID string) (Started, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return Started{}, protocol.Errorf(protocol.KindUnknownRoom, "room %s does not exist", roomID)
	}
	if callerID != r.HostID {
		return Started{}, protocol.Errorf(protocol.KindNotHost, "only the host can start the game")
	}
	if r.State != StateWaiting {
		return Started{}, protocol.Errorf(protocol.KindInvalidRoomState,
			"room %s is %s, not waiting", roomID, r.State)
	}
	if len(r.Members) < MinPlayers {
		return Started{}, protocol.Errorf(protocol.KindInvalidRoomState,
			"need at least %d players, have %d", MinPlayers, len(r.Members))
	}

	r.State = StateActive
	m.expirePendingLocked(roomID)

	members := make([]protocol.Identity, 0, len(r.Members))
	for _, id := range r.Members {
		if ident, ok := m.presence.Get(id); ok {
			members = append(members, ident)
		} else {
			members = append(members, protocol.Identity{ID: id})
		}
	}
	return Started{RoomID: roomID, Members: members}, nil
}

// Departure describes the room-side consequences of one player leaving,
// by disconnect or otherwise.
type Departure struct {
	RoomID string
	// Closed is true when the departure tore the room down.
	Closed bool
	Reason string
	// WasActive is true when the room was mid-match at departure time.
	WasActive bool
	// Remaining holds the member ids still in the room (empty if closed).
	Remaining []string
	// Notify holds every id that should learn about the departure or
	// closure: remaining members, plus expired invitees on closure.
	Notify []string
}

// Leave removes playerID from their room, if any, and expires their
// pending invites everywhere.
//
// Postcondition: Returns (departure, true) if the player was a room
// member; (zero, false) otherwise. Host departure from a waiting room
// closes it; the active-room win check is the caller's job, using
// Remaining.
func (m *Manager) Leave(playerID string) (Departure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A vanished invitee can no longer accept.
	for _, pending := range m.invites {
		if inv, ok := pending[playerID]; ok && inv.Status == InvitePending {
			inv.Status = InviteExpired
		}
	}

	roomID, ok := m.memberRoom[playerID]
	if !ok {
		return Departure{}, false
	}
	r := m.rooms[roomID]
	delete(m.memberRoom, playerID)
	r.Members = removeID(r.Members, playerID)

	dep := Departure{RoomID: roomID, WasActive: r.State == StateActive}

	if r.State == StateWaiting && playerID == r.HostID {
		dep.Closed = true
		dep.Reason = "host left the room"
		dep.Notify = m.closeLocked(r)
		return dep, true
	}

	dep.Remaining = append([]string(nil), r.Members...)
	dep.Notify = dep.Remaining
	if len(r.Members) == 0 {
		m.deleteLocked(r)
	}
	return dep, true
}

// Close tears a room down.
//
// Postcondition: Returns the ids to notify, or an error if the room is
// unknown. A second close of the same id reports UnknownRoom, so the
// caller can treat closure as exactly-once.
func (m *Manager) Close(roomID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil, protocol.Errorf(protocol.KindUnknownRoom, "room %s does not exist", roomID)
	}
	return m.closeLocked(r), nil
}

// Snapshot returns the wire view of a room.
func (m *Manager) Snapshot(roomID string) (protocol.RoomSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return protocol.RoomSnapshot{}, false
	}
	return r.snapshot(m.presence.Get), true
}

// RoomOf returns the room id playerID is a member of.
func (m *Manager) RoomOf(playerID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.memberRoom[playerID]
	return id, ok
}

// Members returns the current member ids of a room.
func (m *Manager) Members(roomID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]string(nil), r.Members...)
}

// IsActive reports whether roomID is mid-match.
func (m *Manager) IsActive(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	return ok && r.State == StateActive
}

// InviteStatusOf returns the resolution state of one invite, for tests and
// diagnostics.
func (m *Manager) InviteStatusOf(roomID, inviteeID string) (InviteStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[roomID][inviteeID]
	if !ok {
		return "", false
	}
	return inv.Status, true
}

// closeLocked marks the room closed, expires its invites, releases its
// members, and drops it from tracking. Returns every id to notify.
func (m *Manager) closeLocked(r *Room) []string {
	r.State = StateClosed
	notify := append([]string(nil), r.Members...)
	for _, inv := range m.invites[r.ID] {
		if inv.Status == InvitePending {
			inv.Status = InviteExpired
			notify = append(notify, inv.InviteeID)
		}
	}
	m.deleteLocked(r)
	return notify
}

func (m *Manager) deleteLocked(r *Room) {
	for _, id := range r.Members {
		delete(m.memberRoom, id)
	}
	delete(m.rooms, r.ID)
	delete(m.invites, r.ID)
}

func (m *Manager) expirePendingLocked(roomID string) {
	for _, inv := range m.invites[roomID] {
		if inv.Status == InvitePending {
			inv.Status = InviteExpired
		}
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
