package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/visage/internal/config"
	"github.com/scrypster/visage/internal/engine"
	"github.com/scrypster/visage/internal/server"
	"github.com/scrypster/visage/internal/storage"
	"github.com/scrypster/visage/internal/storage/postgres"
	"github.com/scrypster/visage/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides VISAGE_CONFIG_FILE)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("VISAGE_CONFIG_FILE", *configPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineCfg := engine.DefaultConfig()
	engineCfg.MatchThreshold = cfg.Engine.MatchThreshold
	engineCfg.IdentifyTimeout = cfg.Engine.IdentifyTimeout
	identityEngine, err := engine.New(store, engineCfg)
	if err != nil {
		log.Fatalf("Failed to initialize identity engine: %v", err)
	}

	addr, _ := server.Start(ctx, cfg, identityEngine)
	log.Printf("Visage running at http://%s (storage: %s)", addr, cfg.Storage.StorageEngine)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore selects the storage backend from configuration.
func openStore(cfg *config.Config) (storage.IdentityStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewIdentityStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewIdentityStore(cfg.Storage.DataPath + "/visage.db")
	}
}
