// Package room owns the game-session lifecycle: room creation, invite
// dispatch and resolution, membership, match start, and teardown.
package room

import (
	"time"

	"github.com/lanefield/arena/internal/protocol"
)

// State is a room lifecycle state. Rooms move strictly forward:
// forming → waiting → active → closed.
type State string

const (
	// StateForming exists only inside Create while invites are dispatched.
	StateForming State = "forming"
	// StateWaiting accepts invite resolutions; the host may start the game.
	StateWaiting State = "waiting"
	// StateActive is a running match; no further joins.
	StateActive State = "active"
	// StateClosed is terminal.
	StateClosed State = "closed"
)

// InviteStatus is the resolution state of one invite, independent of the
// room's own state.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRejected InviteStatus = "rejected"
	InviteExpired  InviteStatus = "expired"
)

// Invite is a pending offer for one identity to join one room.
type Invite struct {
	RoomID    string
	InviterID string
	InviteeID string
	Status    InviteStatus
}

// Room is one bounded group of identities forming or playing a match.
//
// Invariant: len(Members) <= MaxPlayers.
// Invariant: HostID is fixed at creation and always present in Members
// until the room closes.
type Room struct {
	ID         string
	Name       string
	HostID     string
	MaxPlayers int
	// Members is the ordered join list; the host is always index 0.
	Members   []string
	State     State
	CreatedAt time.Time
}

// MinPlayers is the member count required before a match may start.
const MinPlayers = 2

// MaxPlayersLimit is the largest room the protocol supports.
const MaxPlayersLimit = 8

// HasMember reports whether id is in the member list.
func (r *Room) HasMember(id string) bool {
	for _, m := range r.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Full reports whether the room is at capacity.
func (r *Room) Full() bool {
	return len(r.Members) >= r.MaxPlayers
}

// snapshot builds the wire view of the room. resolve maps a member id to
// its lobby identity; unknown ids degrade to bare-id entries rather than
// dropping the member.
func (r *Room) snapshot(resolve func(string) (protocol.Identity, bool)) protocol.RoomSnapshot {
	members := make([]protocol.Identity, 0, len(r.Members))
	for _, id := range r.Members {
		if ident, ok := resolve(id); ok {
			members = append(members, ident)
			continue
		}
		members = append(members, protocol.Identity{ID: id})
	}
	return protocol.RoomSnapshot{
		ID:         r.ID,
		Name:       r.Name,
		HostID:     r.HostID,
		MaxPlayers: r.MaxPlayers,
		State:      string(r.State),
		Members:    members,
	}
}
