package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the outer frame of every wire message.
type Envelope struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode frames an event and its payload into wire bytes.
//
// Precondition: payload must be JSON-marshalable; nil means no payload.
// Postcondition: Returns the encoded envelope or a non-nil error.
func Encode(event Event, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", event, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s envelope: %w", event, err)
	}
	return data, nil
}

// Decode parses wire bytes into an event name and its typed payload.
// Unknown events and payloads that fail shape validation are rejected with
// a KindMalformedPayload error; nothing is dropped silently.
//
// Postcondition: On success the returned payload is the concrete struct for
// the event (nil for ping-check/pong-check).
func Decode(data []byte) (Event, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, Errorf(KindMalformedPayload, "undecodable envelope: %v", err)
	}
	if env.Event == "" {
		return "", nil, Errorf(KindMalformedPayload, "envelope missing event name")
	}

	payload, err := decodePayload(env.Event, env.Payload)
	if err != nil {
		return env.Event, nil, err
	}
	return env.Event, payload, nil
}

func decodePayload(event Event, raw json.RawMessage) (any, error) {
	switch event {
	case EventUserOnline:
		var p Identity
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, Errorf(KindMalformedPayload, "user-online requires a name")
		}
		return p, nil
	case EventCreateGame:
		var p CreateGame
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		if p.RoomConfig.RoomName == "" {
			return nil, Errorf(KindMalformedPayload, "create-game requires roomConfig.roomName")
		}
		return p, nil
	case EventAcceptInvite, EventRejectInvite:
		var p InviteReply
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		if p.RoomID == "" {
			return nil, Errorf(KindMalformedPayload, "%s requires roomId", event)
		}
		return p, nil
	case EventStartGame:
		var p StartGame
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		if p.RoomID == "" {
			return nil, Errorf(KindMalformedPayload, "start-game requires roomId")
		}
		return p, nil
	case EventPlayerMove:
		var p PlayerMove
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		if p.RoomID == "" {
			return nil, Errorf(KindMalformedPayload, "player-move requires roomId")
		}
		return p, nil
	case EventPlayerShot:
		var p PlayerShot
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		if p.BulletID == "" {
			return nil, Errorf(KindMalformedPayload, "player-shot requires a bullet id")
		}
		return p, nil
	case EventBulletPosition:
		var p BulletPosition
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		if p.BulletID == "" {
			return nil, Errorf(KindMalformedPayload, "bullet-position requires bulletId")
		}
		return p, nil
	case EventPlayerHit:
		var p PlayerHit
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		if p.RoomID == "" || p.TargetID == "" || p.BulletID == "" {
			return nil, Errorf(KindMalformedPayload, "player-hit requires roomId, targetId and bulletId")
		}
		if p.Damage <= 0 {
			return nil, Errorf(KindMalformedPayload, "player-hit damage must be positive, got %d", p.Damage)
		}
		return p, nil
	case EventPingCheck, EventPongCheck:
		return nil, nil
	case EventUsersList:
		var p []Identity
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventUserJoined:
		var p Identity
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventUserLeft:
		var p UserLeft
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventUserStatusUpdate:
		var p UserStatusUpdate
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventGameCreated:
		var p GameCreated
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventGameInvite:
		var p GameInvite
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventRoomJoined:
		var p RoomJoined
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPlayerJoinedRoom:
		var p PlayerJoinedRoom
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventGameStarting:
		var p GameStarting
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventRoomClosed:
		var p RoomClosed
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventUpdatePositions:
		var p []PlayerSnapshot
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventBulletHitConfirmed:
		var p BulletHitConfirmed
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPlayerHealthUpdate:
		var p PlayerHealthUpdate
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPlayerKilled:
		var p PlayerKilled
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPlayerRespawn:
		var p PlayerRespawn
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPlayerLeft:
		var p PlayerLeft
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventError:
		var p ErrorEvent
		if err := unmarshal(event, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, Errorf(KindMalformedPayload, "unknown event %q", event)
	}
}

func unmarshal(event Event, raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return Errorf(KindMalformedPayload, "%s requires a payload", event)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return Errorf(KindMalformedPayload, "%s payload: %v", event, err)
	}
	return nil
}
