package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/scrypster/stacksense/internal/backup"
	"github.com/scrypster/stacksense/internal/cache"
	"github.com/scrypster/stacksense/internal/config"
	"github.com/scrypster/stacksense/internal/metrics"
	"github.com/scrypster/stacksense/internal/rules"
	"github.com/scrypster/stacksense/internal/server"
	"github.com/scrypster/stacksense/internal/services"
	"github.com/scrypster/stacksense/internal/storage"
	"github.com/scrypster/stacksense/internal/storage/postgres"
	"github.com/scrypster/stacksense/internal/storage/sqlite"
	"github.com/scrypster/stacksense/web/handlers"
)

func main() {
	// Load configuration
	if err := config.LoadEnvFile(getEnvFile()); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize storage
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	resilient := storage.NewResilientStore(store, storage.BreakerConfig{
		MaxFailures: uint32(cfg.Storage.BreakerMaxFailures),
		Timeout:     cfg.Storage.BreakerTimeout,
	})
	defer func() {
		if err := resilient.Close(); err != nil {
			log.Printf("Error closing storage: %v", err)
		}
	}()

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := handlers.NewWebSocketHub(server.OriginPatterns(cfg), userResolver(cfg))
	go hub.Run()

	var m *metrics.Metrics
	if cfg.Server.Metrics {
		m = metrics.New()
	}

	svc := services.NewStateService(resilient, resilient,
		services.WithLocation(loc),
		services.WithCache(cache.New(cfg.Cache.Size, cfg.Cache.TTL)),
		services.WithPublisher(hub),
		services.WithMetrics(m),
	)

	if m != nil {
		if err := registerMetrics(m, store, resilient, svc, cfg.Storage.StorageEngine); err != nil {
			log.Printf("Failed to register metrics: %v", err)
		}
	}

	// Seed rules from the pack on disk and keep them in sync.
	if cfg.Rules.Path != "" {
		if err := importPack(ctx, svc, cfg.Rules.Path); err != nil {
			log.Fatalf("Failed to import rule pack: %v", err)
		}
		if cfg.Rules.Watch {
			watcher := rules.NewWatcher(cfg.Rules.Path, func(p *rules.Pack) {
				if err := svc.ImportRules(ctx, p.Snapshot); err != nil {
					log.Printf("Failed to apply reloaded rule pack: %v", err)
				}
			})
			if err := watcher.Start(); err != nil {
				log.Printf("Rule pack watcher disabled: %v", err)
			} else {
				defer watcher.Stop()
			}
		}
	}

	if cfg.Backup.Interval > 0 {
		if err := startBackups(ctx, cfg); err != nil {
			log.Printf("Backups disabled: %v", err)
		}
	}

	var metricsHandler http.Handler
	if m != nil {
		metricsHandler = m.Handler()
	}

	addr, err := server.Start(ctx, cfg, svc, hub, resilient, metricsHandler)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("StackSense API running at http://%s", addr)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// getEnvFile names the dotenv file read before the environment.
func getEnvFile() string {
	if path, ok := os.LookupEnv("STACKSENSE_ENV_FILE"); ok {
		return path
	}
	return ".env"
}

// openStore opens the configured storage engine.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "", "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath())
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.StorageEngine)
	}
}

// registerMetrics exposes cache, breaker and connection pool statistics.
func registerMetrics(m *metrics.Metrics, store storage.Store, resilient *storage.ResilientStore, svc *services.StateService, engine string) error {
	if err := m.RegisterCache(svc.CacheStats); err != nil {
		return err
	}
	if err := m.RegisterBreaker(resilient.State); err != nil {
		return err
	}
	if pool, ok := store.(interface{ DB() *sql.DB }); ok {
		return m.RegisterDB(pool.DB(), engine)
	}
	return nil
}

// startBackups schedules SQLite backups in the background.
func startBackups(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.StorageEngine != "sqlite" {
		return fmt.Errorf("backups are only supported for sqlite, not %q", cfg.Storage.StorageEngine)
	}
	svc, err := backup.New(backup.Config{
		DBPath:   cfg.Storage.SQLitePath(),
		Dir:      cfg.BackupDir(),
		Interval: cfg.Backup.Interval,
		Keep:     cfg.Backup.Keep,
	})
	if err != nil {
		return err
	}
	go svc.Run(ctx)
	return nil
}

// importPack loads the pack at path and makes it the live rule set.
func importPack(ctx context.Context, svc *services.StateService, path string) error {
	pack, err := rules.LoadPack(path)
	if err != nil {
		return err
	}
	for _, warning := range pack.Warnings {
		log.Printf("rules: warning: %s", warning)
	}
	if err := svc.ImportRules(ctx, pack.Snapshot); err != nil {
		return err
	}
	log.Printf("Loaded rule pack %s (version %s)", path, pack.Snapshot.Version)
	return nil
}

// userResolver picks the subscriber for a websocket connection. Browsers
// cannot set headers on the upgrade request, so the user query parameter
// is accepted as well.
func userResolver(cfg *config.Config) func(*http.Request) string {
	return func(r *http.Request) string {
		if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
			return id
		}
		if id := strings.TrimSpace(r.URL.Query().Get("user")); id != "" {
			return id
		}
		return cfg.Security.DefaultUser
	}
}
