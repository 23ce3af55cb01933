// Package main provides a headless arena client. It connects to the
// session server, auto-accepts invites (or hosts a match itself), and
// plays a crude wander-and-shoot loop. Useful for smoke-testing a
// server and for filling out rooms during development.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lanefield/arena/internal/client"
	"github.com/lanefield/arena/internal/config"
	"github.com/lanefield/arena/internal/observability"
	"github.com/lanefield/arena/internal/protocol"
)

type bot struct {
	logger *zap.Logger
	cfg    config.GameConfig
	id     string

	mu       sync.Mutex
	roomID   string
	playing  bool
	position protocol.Vec3
	heading  float64

	conn     *client.Client
	replicas *client.ReplicaStore
	throttle *client.MoveThrottler
	bullets  *client.BulletTracker
}

func main() {
	serverURL := flag.String("server", "ws://localhost:3001/ws", "arena server websocket endpoint")
	configPath := flag.String("config", "", "optional configuration file; empty = built-in defaults")
	name := flag.String("name", "", "player name; empty = generated")
	host := flag.String("host", "", "comma-separated player ids to invite; empty = wait for invites")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	id := uuid.New().String()
	botName := *name
	if botName == "" {
		botName = "bot-" + id[:8]
	}

	b := &bot{
		logger:   logger.With(zap.String("bot", botName)),
		cfg:      cfg.Game,
		id:       id,
		heading:  rand.Float64() * 2 * math.Pi,
		replicas: client.NewReplicaStore(id),
		throttle: client.NewMoveThrottler(cfg.Game.MoveEpsilonSq, cfg.Game.MoveHeartbeat),
		bullets: client.NewBulletTracker(id, client.TrackerConfig{
			Speed:        cfg.Game.BulletSpeed,
			Lifetime:     cfg.Game.BulletLifetime,
			EmitInterval: cfg.Game.BulletEmitInterval,
		}),
	}

	ctx := context.Background()
	conn, err := client.Dial(ctx, client.Options{
		URL:      *serverURL,
		Identity: protocol.Identity{ID: id, Name: botName},
		Game:     cfg.Game,
		Logger:   logger,
		Handlers: b.handlers(),
	})
	if err != nil {
		logger.Fatal("connecting", zap.Error(err))
	}
	b.conn = conn

	if *host != "" {
		invitees := strings.Split(*host, ",")
		go func() {
			// Give the roster a moment to arrive before inviting.
			time.Sleep(time.Second)
			if err := conn.CreateGame(protocol.RoomConfig{
				RoomName:   botName + "'s match",
				MaxPlayers: len(invitees) + 1,
			}, invitees); err != nil {
				b.logger.Warn("hosting failed", zap.Error(err))
			}
		}()
	}

	go b.playLoop(ctx)

	if err := conn.Run(ctx); err != nil {
		logger.Fatal("session ended", zap.Error(err))
	}
}

func (b *bot) handlers() client.Handlers {
	return client.Handlers{
		OnGameInvite: func(invite protocol.GameInvite) {
			b.logger.Info("accepting invite",
				zap.String("room", invite.RoomID),
				zap.String("host", invite.Host),
			)
			if err := b.conn.AcceptInvite(invite.RoomID); err != nil {
				b.logger.Warn("accept failed", zap.Error(err))
			}
		},
		OnGameCreated: func(created protocol.GameCreated) {
			b.mu.Lock()
			b.roomID = created.RoomID
			b.mu.Unlock()
		},
		OnRoomJoined: func(joined protocol.RoomJoined) {
			b.mu.Lock()
			b.roomID = joined.RoomID
			b.mu.Unlock()
		},
		OnPlayerJoinedRoom: func(arrival protocol.PlayerJoinedRoom) {
			// Hosting bots start as soon as the room fills.
			if arrival.Room.HostID == b.id && len(arrival.Room.Members) == arrival.Room.MaxPlayers {
				if err := b.conn.StartGame(arrival.Room.ID); err != nil {
					b.logger.Warn("start failed", zap.Error(err))
				}
			}
		},
		OnGameStarting: func(starting protocol.GameStarting) {
			b.logger.Info("match starting", zap.String("room", starting.RoomID))
			b.mu.Lock()
			b.roomID = starting.RoomID
			b.playing = true
			b.mu.Unlock()
		},
		OnRoomClosed: func(closed protocol.RoomClosed) {
			if closed.WinnerID != "" {
				b.logger.Info("match over",
					zap.String("winner", closed.WinnerName),
					zap.Bool("won", closed.WinnerID == b.id),
				)
			}
			b.mu.Lock()
			b.roomID = ""
			b.playing = false
			b.mu.Unlock()
		},
		OnPositions: func(batch []protocol.PlayerSnapshot) {
			b.replicas.ApplySnapshot(batch)
		},
		OnHealth: func(update protocol.PlayerHealthUpdate) {
			b.replicas.ApplyHealth(update)
		},
		OnRespawn: func(respawn protocol.PlayerRespawn) {
			b.replicas.ApplyRespawn(respawn)
		},
		OnPlayerLeft: func(left protocol.PlayerLeft) {
			b.replicas.Remove(left.ID)
		},
		OnKilled: func(killed protocol.PlayerKilled) {
			if killed.VictimID == b.id {
				b.logger.Info("died", zap.String("killer", killed.KillerName))
			}
		},
		OnServerError: func(errEvt protocol.ErrorEvent) {
			b.logger.Warn("server rejected intent",
				zap.String("kind", string(errEvt.Kind)),
				zap.String("message", errEvt.Message),
			)
		},
		OnLatency: func(rtt time.Duration) {
			b.logger.Debug("latency", zap.Duration("rtt", rtt))
		},
	}
}

// playLoop wanders the arena, fires at the nearest live replica, and
// submits whatever the bullet sweep produces.
func (b *bot) playLoop(ctx context.Context) {
	const speed = 5.0 // units/second
	frame := 50 * time.Millisecond
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	lastShot := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.mu.Lock()
			roomID, playing := b.roomID, b.playing
			if !playing {
				b.mu.Unlock()
				continue
			}

			// Wander: drift the heading and step forward.
			b.heading += (rand.Float64() - 0.5) * 0.4
			b.position.X += math.Cos(b.heading) * speed * frame.Seconds()
			b.position.Z += math.Sin(b.heading) * speed * frame.Seconds()
			pos := b.position
			heading := b.heading
			b.mu.Unlock()

			if b.throttle.ShouldSend(pos, now) {
				_ = b.conn.SendMove(protocol.PlayerMove{
					RoomID:    roomID,
					Position:  pos,
					Rotation:  heading,
					Animation: "run",
				})
			}

			if now.Sub(lastShot) > 800*time.Millisecond {
				if target, ok := b.nearestTarget(pos); ok {
					lastShot = now
					dir := protocol.Vec3{X: target.Position.X - pos.X, Y: 0, Z: target.Position.Z - pos.Z}
					shot := b.bullets.Fire(pos, dir, now)
					_ = b.conn.SendShot(shot)
				}
			}

			res := b.bullets.Tick(now, b.replicas.Targets())
			for _, emission := range res.Emissions {
				_ = b.conn.SendBulletPosition(emission)
			}
			for _, claim := range res.Claims {
				claim.RoomID = roomID
				claim.Damage = b.cfg.HitDamage
				_ = b.conn.SendHit(claim)
			}
		}
	}
}

func (b *bot) nearestTarget(from protocol.Vec3) (protocol.PlayerSnapshot, bool) {
	best := math.Inf(1)
	var nearest protocol.PlayerSnapshot
	found := false
	for _, target := range b.replicas.Targets() {
		dx, dz := target.Position.X-from.X, target.Position.Z-from.Z
		if d := dx*dx + dz*dz; d < best {
			best = d
			nearest = target
			found = true
		}
	}
	return nearest, found
}
