// Package protocol defines the closed wire schema for the arena session
// channel: event names, typed payloads, the envelope codec, and the error
// kind taxonomy. Every message on the wire is an Envelope whose payload
// shape is fixed by its event name; unknown events and malformed payloads
// are rejected at the boundary rather than dropped.
package protocol

import (
	"fmt"
	"time"
)

// BulletID derives the wire id for a bullet from its shooter and fire time.
// The pair is unique per shooter because a client fires at most one bullet
// per millisecond.
func BulletID(shooterID string, firedAt time.Time) string {
	return fmt.Sprintf("%s-%d", shooterID, firedAt.UnixMilli())
}

// Event is a wire event name. The set of events is closed; Decode rejects
// anything outside it.
type Event string

// Client → server intents.
const (
	EventUserOnline     Event = "user-online"
	EventCreateGame     Event = "create-game"
	EventAcceptInvite   Event = "accept-invite"
	EventRejectInvite   Event = "reject-invite"
	EventStartGame      Event = "start-game"
	EventPlayerMove     Event = "player-move"
	EventPlayerShot     Event = "player-shot"
	EventBulletPosition Event = "bullet-position"
	EventPlayerHit      Event = "player-hit"
	EventPingCheck      Event = "ping-check"
)

// Server → client updates.
const (
	EventUsersList          Event = "users-list"
	EventUserJoined         Event = "user-joined"
	EventUserLeft           Event = "user-left"
	EventUserStatusUpdate   Event = "user-status-update"
	EventGameCreated        Event = "game-created"
	EventGameInvite         Event = "game-invite"
	EventRoomJoined         Event = "room-joined"
	EventPlayerJoinedRoom   Event = "player-joined-room"
	EventGameStarting       Event = "game-starting"
	EventRoomClosed         Event = "room-closed"
	EventUpdatePositions    Event = "update-positions"
	EventBulletHitConfirmed Event = "bullet-hit-confirmed"
	EventPlayerHealthUpdate Event = "player-health-update"
	EventPlayerKilled       Event = "player-killed"
	EventPlayerRespawn      Event = "player-respawn"
	EventPlayerLeft         Event = "player-left"
	EventPongCheck          Event = "pong-check"
	EventError              Event = "error"
)

// Status is a coarse presence state for a connected identity.
type Status string

const (
	StatusOnline  Status = "online"
	StatusPlaying Status = "playing"
	StatusAway    Status = "away"
)

// Valid reports whether s is one of the three defined statuses.
func (s Status) Valid() bool {
	return s == StatusOnline || s == StatusPlaying || s == StatusAway
}

// Vec3 is a position or direction in room-scale units.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Identity describes a connected player as seen by the lobby.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color,omitempty"`
	Status Status `json:"status"`
}

// RoomSnapshot is the wire view of a room, sent with join and create acks.
type RoomSnapshot struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	HostID     string     `json:"hostId"`
	MaxPlayers int        `json:"maxPlayers"`
	State      string     `json:"state"`
	Members    []Identity `json:"members"`
}

// PlayerSnapshot is one member's replicated state inside an update-positions
// batch. Remote clients overwrite their replica with the latest snapshot,
// last write wins per field.
type PlayerSnapshot struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Position  Vec3    `json:"position"`
	Rotation  float64 `json:"rotation"`
	Animation string  `json:"animation,omitempty"`
	Velocity  Vec3    `json:"velocity"`
	Health    int     `json:"health"`
	Kills     int     `json:"kills"`
	Deaths    int     `json:"deaths"`
	Alive     bool    `json:"isAlive"`
}

// RoomConfig carries the host-chosen settings for a new room.
type RoomConfig struct {
	RoomName   string `json:"roomName"`
	MaxPlayers int    `json:"maxPlayers"`
}

// CreateGame asks the server to open a room and invite the listed players.
type CreateGame struct {
	RoomConfig       RoomConfig `json:"roomConfig"`
	InvitedPlayerIDs []string   `json:"invitedPlayerIds"`
}

// GameCreated acknowledges room creation to the host.
type GameCreated struct {
	RoomID string       `json:"roomId"`
	Room   RoomSnapshot `json:"room"`
}

// GameInvite notifies an invitee of a pending room offer.
type GameInvite struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	Host     string `json:"host"`
	HostID   string `json:"hostId"`
}

// InviteReply resolves an invite; used by both accept-invite and
// reject-invite.
type InviteReply struct {
	RoomID string `json:"roomId"`
}

// RoomJoined delivers the full room snapshot to a player who just joined.
type RoomJoined struct {
	RoomID string       `json:"roomId"`
	Room   RoomSnapshot `json:"room"`
}

// PlayerJoinedRoom tells existing members about a new arrival.
type PlayerJoinedRoom struct {
	Player Identity     `json:"player"`
	Room   RoomSnapshot `json:"room"`
}

// StartGame is the host's request to begin the match.
type StartGame struct {
	RoomID string `json:"roomId"`
}

// GameStarting announces the match start to every member.
type GameStarting struct {
	RoomID string `json:"roomId"`
}

// RoomClosed announces room teardown. Winner fields are set only when the
// room closed because a match resolved to a single survivor.
type RoomClosed struct {
	Reason     string `json:"reason"`
	WinnerID   string `json:"winnerId,omitempty"`
	WinnerName string `json:"winnerName,omitempty"`
}

// PlayerMove is a client's own-position report. The sender is authoritative
// for its transform; the server relays without correction.
type PlayerMove struct {
	RoomID    string  `json:"roomId"`
	Position  Vec3    `json:"position"`
	Rotation  float64 `json:"rotation"`
	Animation string  `json:"animation,omitempty"`
	Velocity  Vec3    `json:"velocity"`
}

// PlayerShot announces a fired bullet. The bullet id is derived from the
// shooter id and fire timestamp, so it is unique per shooter without
// coordination.
type PlayerShot struct {
	BulletID  string `json:"id"`
	ShooterID string `json:"shooterId"`
	Position  Vec3   `json:"position"`
	Direction Vec3   `json:"direction"`
}

// BulletPosition is a periodic live-trajectory sample for an in-flight
// bullet.
type BulletPosition struct {
	BulletID  string `json:"bulletId"`
	ShooterID string `json:"shooterId"`
	Position  Vec3   `json:"position"`
}

// PlayerHit is a shooter-client candidate hit claim. It is not
// authoritative: health changes only after the server confirms.
type PlayerHit struct {
	RoomID    string `json:"roomId"`
	BulletID  string `json:"bulletId"`
	TargetID  string `json:"targetId"`
	ShooterID string `json:"shooterId"`
	Damage    int    `json:"damage"`
	Position  Vec3   `json:"position"`
	// TargetName and NewHealth are client-computed hints kept for wire
	// compatibility; the server ignores them when arbitrating.
	TargetName string `json:"targetName,omitempty"`
	NewHealth  *int   `json:"newHealth,omitempty"`
}

// BulletHitConfirmed is the sole authoritative trigger for health mutation
// on receiving clients.
type BulletHitConfirmed struct {
	BulletID   string `json:"bulletId"`
	ShooterID  string `json:"shooterId"`
	TargetID   string `json:"targetId"`
	TargetName string `json:"targetName"`
	Position   Vec3   `json:"position"`
	Damage     int    `json:"damage"`
}

// PlayerHealthUpdate broadcasts a member's new authoritative health.
type PlayerHealthUpdate struct {
	ID     string `json:"id"`
	Health int    `json:"health"`
}

// PlayerKilled announces a death with both display names for the kill feed.
type PlayerKilled struct {
	VictimID   string `json:"victimId"`
	KillerID   string `json:"killerId"`
	VictimName string `json:"victimName"`
	KillerName string `json:"killerName"`
}

// PlayerRespawn restores a dead player at a fresh spawn position.
type PlayerRespawn struct {
	ID       string `json:"id"`
	Position Vec3   `json:"position"`
	Health   int    `json:"health"`
}

// UserStatusUpdate broadcasts a presence status change.
type UserStatusUpdate struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// UserLeft announces a disconnected identity to the lobby.
type UserLeft struct {
	ID string `json:"id"`
}

// PlayerLeft announces a departed room member to the remaining members.
type PlayerLeft struct {
	ID string `json:"id"`
}
