// Package hub routes the bidirectional event channel: it owns the
// connected peers, dispatches each connection's inbound intents serially
// to the presence, room, and match layers, and fans authoritative updates
// back out.
package hub

import "github.com/lanefield/arena/internal/protocol"

// Peer is one connected client as the dispatcher sees it. The transport
// (WebSocket in production, a fake in tests) queues outbound events;
// Send must not block the caller.
type Peer interface {
	// ID is the connection-scoped identity id.
	ID() string
	// Send queues one event for delivery. Errors are transport-level;
	// the dispatcher logs and otherwise ignores them.
	Send(event protocol.Event, payload any) error
}
