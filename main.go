package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coursepilot/coursepilot/pkg/completion"
	"github.com/coursepilot/coursepilot/pkg/config"
	"github.com/coursepilot/coursepilot/pkg/db"
	"github.com/coursepilot/coursepilot/pkg/kv"
	"github.com/coursepilot/coursepilot/pkg/service"
	"github.com/coursepilot/coursepilot/pkg/utils"
)

func main() {
	// Initialize logging system
	utils.InitLogger()
	logger := utils.GetLogger()

	if _, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("Failed to write default config", "error", err)
	}

	cfg, cfgPath, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded configuration", "path", cfgPath, "backend", cfg.StorageBackend())

	// Session persistence backend
	var store kv.Store
	switch cfg.StorageBackend() {
	case "file":
		store, err = kv.NewFileStore(filepath.Join(cfg.DataDir(), "sessions"))
		if err != nil {
			logger.Error("Failed to open file store", "error", err)
			os.Exit(1)
		}
	case "redis":
		store, err = kv.NewRedisStore(cfg.RedisAddr())
		if err != nil {
			logger.Error("Failed to connect to redis", "addr", cfg.RedisAddr(), "error", err)
			os.Exit(1)
		}
	default:
		store = kv.NewMemoryStore()
	}

	// Course catalog database
	catalogDB, err := db.Open(filepath.Join(cfg.DataDir(), "catalog.db"))
	if err != nil {
		logger.Error("Failed to open catalog database", "error", err)
		os.Exit(1)
	}
	catalog := service.NewCatalogService(catalogDB)
	if err := catalog.AutoMigrate(); err != nil {
		logger.Error("Failed to migrate catalog database", "error", err)
		os.Exit(1)
	}

	sessions := service.NewSessionStore(store, service.SessionStoreOptions{
		MaxSessions: cfg.MaxSessions(),
		MaxMessages: cfg.MaxMessages(),
		TTL:         cfg.SessionTTL(),
	})

	client := completion.NewClient(cfg.CompletionEndpoint(), cfg.CompletionAPIKey(), cfg.CompletionTimeout())
	if cfg.CompletionEndpoint() == "" {
		logger.Warn("No completion endpoint configured; tutor replies will be degraded-mode fallbacks")
	}

	tutor := service.NewTutorService(sessions, catalog, client)

	server := NewServer(cfg)
	server.SetupRoutes(sessions, tutor, catalog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
