package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/stacksense/internal/storage"
	"github.com/scrypster/stacksense/internal/storage/postgres"
	"github.com/scrypster/stacksense/pkg/types"
)

// postgresTestDSN returns the DSN for the test database.
// If STACKSENSE_TEST_POSTGRES_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("STACKSENSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STACKSENSE_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore connects to the test database, truncates it and registers
// cleanup.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	store, err := postgres.NewStore(postgresTestDSN(t))
	require.NoError(t, err, "NewStore should succeed")
	require.NoError(t, store.TruncateForTest(context.Background()))

	t.Cleanup(func() {
		store.Close()
	})
	return store
}

var base = time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

func entry(id, user string, offset time.Duration) *types.LogEntry {
	return &types.LogEntry{
		ID:           id,
		UserID:       user,
		SupplementID: "zinc",
		Dosage:       25,
		Unit:         "mg",
		LoggedAt:     base.Add(offset),
	}
}

func TestLogLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddLog(ctx, entry("a", "u1", 0)))
	require.NoError(t, store.AddLog(ctx, entry("b", "u1", time.Hour)))
	require.NoError(t, store.AddLog(ctx, entry("c", "u2", time.Hour)))
	assert.ErrorIs(t, store.AddLog(ctx, entry("a", "u1", 0)), storage.ErrAlreadyExists)

	logs, err := store.ListLogs(ctx, storage.LogQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "b", logs[0].ID)
	assert.True(t, logs[1].LoggedAt.Equal(base))

	logs, err = store.ListLogs(ctx, storage.LogQuery{UserID: "u1", Since: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, logs, 1)

	assert.ErrorIs(t, store.DeleteLog(ctx, "u2", "a"), storage.ErrNotFound)
	require.NoError(t, store.DeleteLog(ctx, "u1", "a"))
	assert.ErrorIs(t, store.DeleteLog(ctx, "u1", "a"), storage.ErrNotFound)
}

func TestRulesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := &types.RuleSnapshot{
		Version: "v1",
		Supplements: map[string]types.Supplement{
			"zinc":   {ID: "zinc", Name: "Zinc", Category: "mineral"},
			"copper": {ID: "copper", Name: "Copper", Category: "mineral", Kinetics: &types.Kinetics{PeakMinutes: 90, HalfLifeMinutes: 300}},
		},
		Interactions: []types.InteractionRule{{
			ID:            "zn-cu",
			RuleEndpoints: types.RuleEndpoints{SourceID: "zinc", TargetID: "copper"},
			Type:          types.InteractionCompetition,
			Severity:      types.SeverityMedium,
		}},
		Ratios:       []types.RatioRule{},
		Timings:      []types.TimingRule{},
		SafetyLimits: types.SafetyLimits{"mineral": {Limit: 100, Unit: "mg"}},
	}
	require.NoError(t, store.ReplaceRules(ctx, want))

	got, err := store.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
