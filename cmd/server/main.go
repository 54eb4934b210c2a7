// Package main implements the entry point for the image relay server, which
// accepts image-generation requests and forwards them to upstream providers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/imagerelay/internal/config"
	"github.com/phrazzld/imagerelay/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Printf("imagerelay: %v", err)
		os.Exit(1)
	}
}

// run loads configuration, builds the application and serves until ctx is
// canceled.
func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"sync_timeout", cfg.Server.SyncTimeout,
		"max_attempts", cfg.Invoker.MaxAttempts,
		"store_ttl", cfg.Store.TTL,
		"callback_signing", cfg.Callback.SigningSecret != "")

	app, err := newApplication(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

