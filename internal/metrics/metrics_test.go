package metrics

import (
	"database/sql"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/scrypster/stacksense/internal/cache"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Derivation(ModeAuthoritative)
	m.Derivation(ModeAuthoritative)
	m.Derivation(ModeSpeculative)
	m.LogWrite(OpAdd)
	m.RulesImported()
	m.EventPublished()
	m.ObserveCompute(2 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.derivations.WithLabelValues(ModeAuthoritative)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.derivations.WithLabelValues(ModeSpeculative)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logWrites.WithLabelValues(OpAdd)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleImports))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events))
	assert.Equal(t, 1, testutil.CollectAndCount(m.deriveSeconds))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Derivation(ModeAuthoritative)
		m.ObserveCompute(time.Second)
		m.LogWrite(OpDelete)
		m.RulesImported()
		m.EventPublished()
	})
	assert.NoError(t, m.RegisterCache(func() cache.Stats { return cache.Stats{} }))
	assert.NoError(t, m.RegisterBreaker(func() string { return "open" }))
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestRegisterCacheAndBreaker(t *testing.T) {
	m := New()
	stats := cache.Stats{Hits: 7, Misses: 3, Size: 2}
	state := "half-open"

	require.NoError(t, m.RegisterCache(func() cache.Stats { return stats }))
	require.NoError(t, m.RegisterBreaker(func() string { return state }))
	assert.Error(t, m.RegisterBreaker(func() string { return state }), "duplicate registration")

	body := scrape(t, m)
	assert.Contains(t, body, "stacksense_cache_hits_total 7")
	assert.Contains(t, body, "stacksense_cache_misses_total 3")
	assert.Contains(t, body, "stacksense_cache_entries 2")
	assert.Contains(t, body, "stacksense_storage_breaker_state 1")

	state = "open"
	assert.Contains(t, scrape(t, m), "stacksense_storage_breaker_state 2")
}

func TestRegisterDB(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := New()
	require.NoError(t, m.RegisterDB(db, "sqlite"))
	assert.NoError(t, m.RegisterDB(nil, "none"))

	assert.Contains(t, scrape(t, m), `go_sql_max_open_connections{db_name="sqlite"}`)
}

func TestBreakerStateValue(t *testing.T) {
	assert.Equal(t, 0.0, BreakerStateValue("closed"))
	assert.Equal(t, 1.0, BreakerStateValue("half-open"))
	assert.Equal(t, 2.0, BreakerStateValue("open"))
	assert.Equal(t, 0.0, BreakerStateValue("unknown"))
}

func TestHandlerExposesRuntimeCollectors(t *testing.T) {
	body := scrape(t, New())
	assert.True(t, strings.Contains(body, "go_goroutines"), "go collector registered")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
