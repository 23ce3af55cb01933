// Package main provides the arena session server binary: the WebSocket
// endpoint that runs the lobby, rooms, and match authority.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/lanefield/arena/internal/config"
	"github.com/lanefield/arena/internal/game"
	"github.com/lanefield/arena/internal/hub"
	"github.com/lanefield/arena/internal/observability"
	"github.com/lanefield/arena/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	layout := game.DefaultLayout()
	if cfg.Arena.LayoutPath != "" {
		layout, err = game.LoadLayout(cfg.Arena.LayoutPath)
		if err != nil {
			logger.Fatal("loading arena layout", zap.Error(err))
		}
	}
	logger.Info("arena loaded",
		zap.String("layout", layout.Name),
		zap.Int("spawn_points", len(layout.SpawnPoints)),
	)

	spawns := game.NewSpawnPicker(layout, rand.Int63())
	dispatcher := hub.NewDispatcher(logger, cfg.Game, spawns)
	verifier := hub.NewVerifier(cfg.Auth.JWTSecret)
	wsServer := hub.NewServer(logger, cfg.Server, dispatcher, verifier)

	ctx := context.Background()

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("dispatcher", &server.FuncService{
		StartFn: func() error {
			dispatcher.Start(ctx)
			return nil
		},
		StopFn: dispatcher.Stop,
	})
	lifecycle.Add("websocket", wsServer)

	logger.Info("starting arena server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Duration("startup", time.Since(start)),
	)
	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
