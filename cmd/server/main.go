package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/autoscripty/internal/config"
	"github.com/autoscripty/internal/db"
	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/http"
	"github.com/autoscripty/internal/logger"
	"github.com/autoscripty/internal/metrics"
	"github.com/autoscripty/internal/provider/memory"
	"github.com/autoscripty/internal/provider/rest"
)

func main() {
	// Load .env file if it exists (optional, won't error if missing)
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.InitLogger(cfg.Environment)
	if envErr != nil {
		appLogger.Debug("no .env file loaded", "error", envErr)
	}

	deps := http.Dependencies{
		Metrics: metrics.New(),
		Logger:  appLogger,
	}

	if cfg.Provider.InMemory() {
		appLogger.Warn("using in-memory provider, accounts and scripts are lost on restart")
		provider := memory.NewProvider()
		deps.Identity = provider
		deps.Scripts = provider
	} else {
		provider := rest.NewClient(cfg.Provider)
		deps.Identity = provider
		deps.Scripts = provider
	}

	if cfg.Storage.Backend == config.StorageSQLite {
		database, err := db.Init(cfg.Storage.DatabasePath)
		if err != nil {
			appLogger.Error("failed to initialize database", "path", cfg.Storage.DatabasePath, "error", err)
			os.Exit(1)
		}
		defer database.Close()
		deps.Scripts = database
		appLogger.Info("scripts stored in SQLite", "path", database.GetDBPath())
	}

	logStartup(appLogger, cfg, deps.Scripts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := http.NewServer(cfg, deps)
	if err := server.Run(ctx); err != nil {
		appLogger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server stopped")
}

func logStartup(l *slog.Logger, cfg *config.Config, store domain.ScriptStore) {
	backend := cfg.Storage.Backend
	if _, ok := store.(*memory.Provider); ok {
		backend = "memory"
	}
	l.Info("starting Auto Scripty",
		"environment", cfg.Environment,
		"address", cfg.ServerAddress,
		"provider", cfg.Provider.URL,
		"storage", backend,
		"protected_prefixes", cfg.Access.Policy.ProtectedPrefixes,
	)
}
