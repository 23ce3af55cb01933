// Package client is the headless counterpart of the session server: it
// dials the WebSocket channel, keeps the lobby and match replicas, and
// runs the client-side halves of the protocol, move throttling, bullet
// simulation, and the latency probe.
package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lanefield/arena/internal/config"
	"github.com/lanefield/arena/internal/protocol"
)

// Handlers are the application callbacks for inbound events. Nil
// handlers are skipped. Callbacks run on the read loop goroutine, so
// they must not block.
type Handlers struct {
	OnUsersList        func([]protocol.Identity)
	OnUserJoined       func(protocol.Identity)
	OnUserLeft         func(protocol.UserLeft)
	OnUserStatus       func(protocol.UserStatusUpdate)
	OnGameCreated      func(protocol.GameCreated)
	OnGameInvite       func(protocol.GameInvite)
	OnRoomJoined       func(protocol.RoomJoined)
	OnPlayerJoinedRoom func(protocol.PlayerJoinedRoom)
	OnGameStarting     func(protocol.GameStarting)
	OnRoomClosed       func(protocol.RoomClosed)
	OnPositions        func([]protocol.PlayerSnapshot)
	OnShot             func(protocol.PlayerShot)
	OnBulletPosition   func(protocol.BulletPosition)
	OnHitConfirmed     func(protocol.BulletHitConfirmed)
	OnHealth           func(protocol.PlayerHealthUpdate)
	OnKilled           func(protocol.PlayerKilled)
	OnRespawn          func(protocol.PlayerRespawn)
	OnPlayerLeft       func(protocol.PlayerLeft)
	OnServerError      func(protocol.ErrorEvent)
	OnLatency          func(rtt time.Duration)
}

// Options configures a Client.
type Options struct {
	// URL is the server WebSocket endpoint, e.g. "ws://localhost:3001/ws".
	URL      string
	Identity protocol.Identity
	// Token is an optional signed handshake token; claims override
	// Identity fields server-side.
	Token    string
	Game     config.GameConfig
	Logger   *zap.Logger
	Handlers Handlers
}

// Client is one connected player. All exported methods are safe for
// concurrent use.
type Client struct {
	opts   Options
	logger *zap.Logger

	writeMu sync.Mutex
	socket  *websocket.Conn

	mu       sync.Mutex
	pingAt   time.Time
	lastRTT  time.Duration
	pingSeen bool

	done chan struct{}
	once sync.Once
}

// Dial connects with bounded retries: up to Game.ReconnectAttempts
// tries, Game.ReconnectDelay apart. After the last failure the caller
// decides, the client never retries forever.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	target, err := dialURL(opts)
	if err != nil {
		return nil, err
	}

	attempts := opts.Game.ReconnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var socket *websocket.Conn
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		socket, _, lastErr = websocket.DefaultDialer.DialContext(ctx, target, nil)
		if lastErr == nil {
			break
		}
		opts.Logger.Warn("connect failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr),
		)
		if attempt == attempts {
			return nil, fmt.Errorf("connecting after %d attempts: %w", attempts, lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Game.ReconnectDelay):
		}
	}

	return &Client{
		opts:   opts,
		logger: opts.Logger.With(zap.String("player", opts.Identity.ID)),
		socket: socket,
		done:   make(chan struct{}),
	}, nil
}

func dialURL(opts Options) (string, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	q := u.Query()
	q.Set("id", opts.Identity.ID)
	q.Set("name", opts.Identity.Name)
	if opts.Identity.Avatar != "" {
		q.Set("avatar", opts.Identity.Avatar)
	}
	if opts.Identity.Color != "" {
		q.Set("color", opts.Identity.Color)
	}
	if opts.Token != "" {
		q.Set("token", opts.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run reads events and drives the latency probe until the connection
// drops, Close is called, or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	go c.pingLoop(ctx)
	defer c.Close()

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return nil
			default:
				return fmt.Errorf("connection lost: %w", err)
			}
		}
		c.handle(data)
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.socket.Close()
	})
}

// LastRTT returns the most recent round-trip measurement, or false if
// no pong has arrived yet.
func (c *Client) LastRTT() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRTT, c.pingSeen
}

// CreateGame asks the server to open a room and invite the listed
// players.
func (c *Client) CreateGame(cfg protocol.RoomConfig, inviteeIDs []string) error {
	return c.send(protocol.EventCreateGame, protocol.CreateGame{
		RoomConfig:       cfg,
		InvitedPlayerIDs: inviteeIDs,
	})
}

// AcceptInvite accepts a pending invite.
func (c *Client) AcceptInvite(roomID string) error {
	return c.send(protocol.EventAcceptInvite, protocol.InviteReply{RoomID: roomID})
}

// RejectInvite declines a pending invite.
func (c *Client) RejectInvite(roomID string) error {
	return c.send(protocol.EventRejectInvite, protocol.InviteReply{RoomID: roomID})
}

// StartGame begins the match. Host only.
func (c *Client) StartGame(roomID string) error {
	return c.send(protocol.EventStartGame, protocol.StartGame{RoomID: roomID})
}

// SendMove reports the local player's transform.
func (c *Client) SendMove(mv protocol.PlayerMove) error {
	return c.send(protocol.EventPlayerMove, mv)
}

// SendShot announces a fired bullet.
func (c *Client) SendShot(shot protocol.PlayerShot) error {
	return c.send(protocol.EventPlayerShot, shot)
}

// SendBulletPosition reports a live trajectory sample.
func (c *Client) SendBulletPosition(bp protocol.BulletPosition) error {
	return c.send(protocol.EventBulletPosition, bp)
}

// SendHit submits a candidate hit claim for server arbitration.
func (c *Client) SendHit(claim protocol.PlayerHit) error {
	return c.send(protocol.EventPlayerHit, claim)
}

func (c *Client) send(event protocol.Event, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.socket.WriteMessage(websocket.TextMessage, data)
}

// pingLoop measures raw round-trip time on the protocol's own
// ping/pong pair, at the configured cadence.
func (c *Client) pingLoop(ctx context.Context) {
	interval := c.opts.Game.PingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.pingAt = time.Now()
			c.mu.Unlock()
			if err := c.send(protocol.EventPingCheck, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(data []byte) {
	event, payload, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn("dropping undecodable event", zap.Error(err))
		return
	}
	h := c.opts.Handlers

	switch event {
	case protocol.EventPongCheck:
		c.mu.Lock()
		rtt := time.Since(c.pingAt)
		c.lastRTT = rtt
		c.pingSeen = true
		c.mu.Unlock()
		if h.OnLatency != nil {
			h.OnLatency(rtt)
		}
	case protocol.EventUsersList:
		if h.OnUsersList != nil {
			h.OnUsersList(payload.([]protocol.Identity))
		}
	case protocol.EventUserJoined:
		if h.OnUserJoined != nil {
			h.OnUserJoined(payload.(protocol.Identity))
		}
	case protocol.EventUserLeft:
		if h.OnUserLeft != nil {
			h.OnUserLeft(payload.(protocol.UserLeft))
		}
	case protocol.EventUserStatusUpdate:
		if h.OnUserStatus != nil {
			h.OnUserStatus(payload.(protocol.UserStatusUpdate))
		}
	case protocol.EventGameCreated:
		if h.OnGameCreated != nil {
			h.OnGameCreated(payload.(protocol.GameCreated))
		}
	case protocol.EventGameInvite:
		if h.OnGameInvite != nil {
			h.OnGameInvite(payload.(protocol.GameInvite))
		}
	case protocol.EventRoomJoined:
		if h.OnRoomJoined != nil {
			h.OnRoomJoined(payload.(protocol.RoomJoined))
		}
	case protocol.EventPlayerJoinedRoom:
		if h.OnPlayerJoinedRoom != nil {
			h.OnPlayerJoinedRoom(payload.(protocol.PlayerJoinedRoom))
		}
	case protocol.EventGameStarting:
		if h.OnGameStarting != nil {
			h.OnGameStarting(payload.(protocol.GameStarting))
		}
	case protocol.EventRoomClosed:
		if h.OnRoomClosed != nil {
			h.OnRoomClosed(payload.(protocol.RoomClosed))
		}
	case protocol.EventUpdatePositions:
		if h.OnPositions != nil {
			h.OnPositions(payload.([]protocol.PlayerSnapshot))
		}
	case protocol.EventPlayerShot:
		if h.OnShot != nil {
			h.OnShot(payload.(protocol.PlayerShot))
		}
	case protocol.EventBulletPosition:
		if h.OnBulletPosition != nil {
			h.OnBulletPosition(payload.(protocol.BulletPosition))
		}
	case protocol.EventBulletHitConfirmed:
		if h.OnHitConfirmed != nil {
			h.OnHitConfirmed(payload.(protocol.BulletHitConfirmed))
		}
	case protocol.EventPlayerHealthUpdate:
		if h.OnHealth != nil {
			h.OnHealth(payload.(protocol.PlayerHealthUpdate))
		}
	case protocol.EventPlayerKilled:
		if h.OnKilled != nil {
			h.OnKilled(payload.(protocol.PlayerKilled))
		}
	case protocol.EventPlayerRespawn:
		if h.OnRespawn != nil {
			h.OnRespawn(payload.(protocol.PlayerRespawn))
		}
	case protocol.EventPlayerLeft:
		if h.OnPlayerLeft != nil {
			h.OnPlayerLeft(payload.(protocol.PlayerLeft))
		}
	case protocol.EventError:
		if h.OnServerError != nil {
			h.OnServerError(payload.(protocol.ErrorEvent))
		}
	default:
		c.logger.Debug("unhandled event", zap.String("event", string(event)))
	}
}
