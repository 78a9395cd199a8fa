package main

import (
	"context"
	"encoding/hex"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/semptify/backend/internal/api"
	"github.com/semptify/backend/internal/cache"
	"github.com/semptify/backend/internal/config"
	"github.com/semptify/backend/internal/contextloop"
	"github.com/semptify/backend/internal/events"
	"github.com/semptify/backend/internal/extract"
	"github.com/semptify/backend/internal/intake"
	"github.com/semptify/backend/internal/intensity"
	"github.com/semptify/backend/internal/laws"
	"github.com/semptify/backend/internal/metrics"
	"github.com/semptify/backend/internal/storage"
	"github.com/semptify/backend/internal/vault"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Get()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	logger.Info("starting semptify core", "env", cfg.Server.Env)

	m := metrics.New()

	// Event bus first; everything else hangs off it.
	bus := events.NewBus(events.Options{
		QueueHighWater: cfg.Bus.QueueHighWater,
		HistoryPerType: cfg.Bus.HistoryPerType,
		HistoryPerUser: cfg.Bus.HistoryPerUser,
		Metrics:        m,
		Logger:         logger,
	})

	// Intensity trend tracker + context loop.
	tracker := intensity.NewTracker(cfg.Intensity.RollingWindow)
	loop := contextloop.NewLoop(bus, tracker, contextloop.Options{
		MailboxSize: cfg.Bus.PerUserMailbox,
		IdleTTL:     time.Duration(cfg.ContextLoop.IdleTTLSeconds) * time.Second,
		Metrics:     m,
		Logger:      logger,
	})

	// Storage provider.
	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	logger.Info("storage provider ready", "provider", provider.Name())

	// Optional token sealer for provider auth tokens.
	if cfg.Storage.SealKeyHex != "" {
		key, err := hex.DecodeString(cfg.Storage.SealKeyHex)
		if err != nil {
			log.Fatalf("invalid SEMPTIFY_SEAL_KEY: %v", err)
		}
		if _, err := storage.NewTokenSealer(key); err != nil {
			log.Fatalf("token sealer init failed: %v", err)
		}
	}

	// Audit log + optional Postgres mirror.
	auditLog, err := vault.NewAuditLog(cfg.Audit.LogDir, logger)
	if err != nil {
		log.Fatalf("audit log init failed: %v", err)
	}
	if cfg.Audit.PostgresDSN != "" {
		mirror, err := vault.NewPostgresAuditMirror(cfg.Audit.PostgresDSN, logger)
		if err != nil {
			logger.Warn("audit postgres mirror unavailable", "error", err)
		} else {
			auditLog.SetMirror(mirror.Mirror)
			defer mirror.Close()
		}
	}

	// Vault access engine.
	registry := vault.NewRegistry()
	vaultEngine := vault.NewEngine(registry, auditLog, bus, provider, m, logger)

	// Intake pipeline: keyword classifier, rule extractor, law engine.
	lawEngine := laws.NewEngine()
	pipeline := intake.NewPipeline(
		vaultEngine,
		intake.NewKeywordClassifier(),
		extract.New(),
		lawEngine,
		bus,
		intake.Options{
			ClassifierTimeout: time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
			Logger:            logger,
		},
	)

	// Convenience cache for derived views.
	store := cache.Open(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, logger)
	defer store.Close()

	server := api.NewServer(bus, loop, vaultEngine, auditLog, pipeline, lawEngine, store,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second, logger)

	// Serve until a signal arrives, then drain in dependency order:
	// HTTP first, then the loop's mailboxes, then the bus.
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(":" + cfg.Server.Port) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server failed: %v", err)
		}
		return
	}

	deadline := time.Duration(cfg.Shutdown.DeadlineSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := loop.Close(ctx); err != nil {
		logger.Warn("context loop shutdown incomplete", "error", err)
	}
	if err := bus.Close(ctx); err != nil {
		logger.Warn("bus shutdown incomplete", "error", err)
	}
	auditLog.Close()
	logger.Info("shutdown complete")
}

// buildProvider picks the configured storage backend.
func buildProvider(cfg *config.Config) (storage.Provider, error) {
	switch cfg.Storage.Provider {
	case "supabase":
		return storage.NewSupabaseProvider(
			cfg.Storage.Supabase.URL,
			cfg.Storage.Supabase.ServiceKey,
			cfg.Storage.Supabase.Bucket,
		)
	default:
		return storage.NewLocalProvider(cfg.Storage.LocalRoot)
	}
}
