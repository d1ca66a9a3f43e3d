// Package main provides the T.I.T.S. bridge client: it joins an Archipelago
// multiworld session and relays item, goal, and death-link events to the
// T.I.T.S. overlay application as trigger activations.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/quillhaven/titsbridge/internal/archipelago"
	"github.com/quillhaven/titsbridge/internal/bridge"
	"github.com/quillhaven/titsbridge/internal/config"
	"github.com/quillhaven/titsbridge/internal/console"
	"github.com/quillhaven/titsbridge/internal/observability"
	"github.com/quillhaven/titsbridge/internal/server"
	"github.com/quillhaven/titsbridge/internal/tits"
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

	logger.Info("starting T.I.T.S. bridge",
		zap.String("archipelago_addr", cfg.Archipelago.Addr()),
		zap.String("slot", cfg.Archipelago.Slot),
		zap.Int("tits_port", cfg.Tits.Port),
	)

	// Build services
	overlay := tits.NewClient(logger, cfg.Tits.Alias)
	relay := bridge.New(logger, overlay, cfg.Tits.Port)
	session := archipelago.NewSession(cfg.Archipelago, logger, relay, relay)
	operator := console.New(relay, session, logger, os.Stdin, os.Stdout)

	// Wire lifecycle
	ctx := context.Background()
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("session", &server.FuncService{
		StartFn: func() error {
			return session.Run(ctx)
		},
		StopFn: func() {
			session.Stop()
		},
	})

	lifecycle.Add("console", &server.FuncService{
		StartFn: func() error {
			return operator.Run()
		},
		StopFn: func() {
			operator.Stop()
		},
	})

	logger.Info("bridge initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("bridge error", zap.Error(err))
	}
}
