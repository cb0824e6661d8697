package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/stacksense/internal/config"
	"github.com/scrypster/stacksense/internal/metrics"
	"github.com/scrypster/stacksense/internal/services"
	"github.com/scrypster/stacksense/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.Storage.StorageEngine = "sqlite"
	cfg.Storage.DataPath = filepath.Join(t.TempDir(), "nested", "data")
	cfg.Security.DefaultUser = "default"
	return cfg
}

func TestOpenStore_SQLiteCreatesDataDir(t *testing.T) {
	cfg := testConfig(t)

	store, err := openStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = os.Stat(cfg.Storage.SQLitePath())
	assert.NoError(t, err, "database file should exist after open")
}

func TestOpenStore_UnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.StorageEngine = "mongo"

	_, err := openStore(cfg)
	assert.Error(t, err)
}

func TestImportPack_LoadsShippedPack(t *testing.T) {
	cfg := testConfig(t)
	store, err := openStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	svc := services.NewStateService(store, store)
	ctx := context.Background()

	require.NoError(t, importPack(ctx, svc, filepath.Join("..", "..", "configs", "rulepack.yaml")))

	snap, err := svc.Rules(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Version)
	assert.NotEmpty(t, snap.Supplements)
}

func TestImportPack_MissingFile(t *testing.T) {
	cfg := testConfig(t)
	store, err := openStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	svc := services.NewStateService(store, store)
	assert.Error(t, importPack(context.Background(), svc, filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestUserResolver(t *testing.T) {
	resolve := userResolver(testConfig(t))

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.Equal(t, "default", resolve(r))

	r = httptest.NewRequest("GET", "/ws?user=alice", nil)
	assert.Equal(t, "alice", resolve(r))

	r.Header.Set("X-User-ID", "bob")
	assert.Equal(t, "bob", resolve(r), "header wins over query")
}

func TestRegisterMetrics(t *testing.T) {
	cfg := testConfig(t)
	store, err := openStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	resilient := storage.NewResilientStore(store, storage.BreakerConfig{})
	svc := services.NewStateService(resilient, resilient)
	m := metrics.New()

	require.NoError(t, registerMetrics(m, store, resilient, svc, "sqlite"))
	assert.Error(t, registerMetrics(m, store, resilient, svc, "sqlite"), "second registration collides")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `go_sql_open_connections{db_name="sqlite"}`)
	assert.Contains(t, rec.Body.String(), "stacksense_cache_entries 0")
}

func TestStartBackups_RejectsPostgres(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.StorageEngine = "postgres"
	assert.Error(t, startBackups(context.Background(), cfg))
}

func TestStartBackups_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Interval = time.Hour
	store, err := openStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, startBackups(ctx, cfg))
	assert.DirExists(t, cfg.BackupDir())
}
