package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind is a closed enumeration of the ways the server can reject an
// intent. Kinds are stable wire strings so clients can branch on them
// without parsing messages.
type ErrorKind string

const (
	// KindInvalidRoomState rejects a transition the room's lifecycle state
	// does not permit (start before waiting, join after start, bad config).
	KindInvalidRoomState ErrorKind = "invalid_room_state"
	// KindNotHost rejects a host-only operation from a non-host member.
	KindNotHost ErrorKind = "not_host"
	// KindRoomFull rejects a join against a room at max capacity.
	KindRoomFull ErrorKind = "room_full"
	// KindStaleInvite rejects acting on an invite that was already resolved
	// or expired.
	KindStaleInvite ErrorKind = "stale_invite"
	// KindStaleClaim rejects a hit claim whose bullet was already
	// reconciled.
	KindStaleClaim ErrorKind = "stale_claim"
	// KindUnknownTarget rejects a hit claim against a player who is absent
	// or already dead.
	KindUnknownTarget ErrorKind = "unknown_target"
	// KindNotOnline rejects an invite to an identity that is not connected.
	KindNotOnline ErrorKind = "not_online"
	// KindUnknownRoom rejects an operation naming a room id the server does
	// not track.
	KindUnknownRoom ErrorKind = "unknown_room"
	// KindMalformedPayload rejects an envelope whose payload failed schema
	// validation, or an unknown event name.
	KindMalformedPayload ErrorKind = "malformed_payload"
)

// Error is a kinded rejection. Handlers surface it to the offending client
// as an error event; state is left unchanged.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds a kinded Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrorEvent is the wire payload of an error event.
type ErrorEvent struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// AsEvent converts an error into its wire payload. Kinded errors keep their
// kind; anything else is reported as an invalid room state with the error
// text.
func AsEvent(err error) ErrorEvent {
	var e *Error
	if errors.As(err, &e) {
		return ErrorEvent{Kind: e.Kind, Message: e.Message}
	}
	return ErrorEvent{Kind: KindInvalidRoomState, Message: err.Error()}
}
