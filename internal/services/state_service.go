// Package services holds the application services that sit between the HTTP
// handlers and storage. StateService is the single place that turns stored
// logs and rules into a derived snapshot.
package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/stacksense/internal/cache"
	"github.com/scrypster/stacksense/internal/engine"
	"github.com/scrypster/stacksense/internal/metrics"
	"github.com/scrypster/stacksense/internal/storage"
	"github.com/scrypster/stacksense/pkg/types"
)

// Event types published to subscribers.
const (
	EventStateUpdated = "state_updated"
	EventRulesUpdated = "rules_updated"
)

// LogWindow is how far back logs are fetched for a derivation. It covers the
// timeline lookback plus the start of the current calendar day.
const LogWindow = 36 * time.Hour

// PendingIDPrefix marks speculative log ids.
const PendingIDPrefix = "pending:"

// Publisher receives events after state changes. The WebSocket hub is the
// production implementation.
type Publisher interface {
	Broadcast(message interface{})
}

// StateEvent is the payload pushed to subscribers.
type StateEvent struct {
	Type         string          `json:"type"`
	UserID       string          `json:"user_id,omitempty"`
	RulesVersion string          `json:"rules_version,omitempty"`
	Snapshot     *types.Snapshot `json:"snapshot,omitempty"`
}

// StateService derives snapshots for users.
type StateService struct {
	logs      storage.LogStore
	rules     storage.RuleStore
	cache     *cache.SnapshotCache
	publisher Publisher
	metrics   *metrics.Metrics
	location  *time.Location
	clock     func() time.Time
}

// Option configures a StateService.
type Option func(*StateService)

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(s *StateService) { s.clock = clock }
}

// WithLocation sets the zone whose calendar day bounds "today".
func WithLocation(loc *time.Location) Option {
	return func(s *StateService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithCache replaces the default snapshot cache.
func WithCache(c *cache.SnapshotCache) Option {
	return func(s *StateService) { s.cache = c }
}

// WithPublisher registers the event sink.
func WithPublisher(p Publisher) Option {
	return func(s *StateService) { s.publisher = p }
}

// WithMetrics records service activity. A nil m disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *StateService) { s.metrics = m }
}

// NewStateService creates a service reading logs and rules from the given stores.
func NewStateService(logs storage.LogStore, rules storage.RuleStore, opts ...Option) *StateService {
	s := &StateService{
		logs:     logs,
		rules:    rules,
		location: time.Local,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New(cache.DefaultSize, cache.DefaultTTL)
	}
	return s
}

func (s *StateService) now() time.Time {
	return s.clock().In(s.location)
}

// Authoritative derives the user's snapshot from stored logs only.
func (s *StateService) Authoritative(ctx context.Context, userID string) (*types.Snapshot, error) {
	s.metrics.Derivation(metrics.ModeAuthoritative)
	return s.derive(ctx, userID, nil)
}

// Speculative derives the snapshot the user would see if pending were
// already stored. Pending entries are validated but never persisted; missing
// ids get a "pending:" prefix and missing timestamps default to now.
func (s *StateService) Speculative(ctx context.Context, userID string, pending []types.LogEntry) (*types.Snapshot, error) {
	now := s.now()
	extra := make([]types.LogEntry, 0, len(pending))
	for i, p := range pending {
		if err := validateEntry(&p); err != nil {
			return nil, fmt.Errorf("pending log %d: %w", i, err)
		}
		if p.ID == "" {
			p.ID = PendingIDPrefix + uuid.NewString()
		}
		if p.LoggedAt.IsZero() {
			p.LoggedAt = now
		}
		p.UserID = userID
		extra = append(extra, p)
	}
	s.metrics.Derivation(metrics.ModeSpeculative)
	return s.derive(ctx, userID, extra)
}

func (s *StateService) derive(ctx context.Context, userID string, extra []types.LogEntry) (*types.Snapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	now := s.now()

	rules, err := s.rules.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("services: failed to load rules: %w", err)
	}

	logs, err := s.logs.ListLogs(ctx, storage.LogQuery{
		UserID: userID,
		Since:  now.Add(-LogWindow),
		Until:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("services: failed to list logs: %w", err)
	}
	logs = append(logs, extra...)

	// Reads within one minute over the same logs share a cache entry.
	key := cache.Key(userID, logs, rules, now.Truncate(time.Minute), s.location)
	return s.cache.GetOrCompute(key, func() *types.Snapshot {
		start := time.Now()
		defer func() { s.metrics.ObserveCompute(time.Since(start)) }()
		return engine.DeriveStateWithOptions(logs, rules, now, engine.DeriveOptions{Location: s.location})
	}), nil
}

// AddLog validates and stores a new entry for userID, then publishes the
// refreshed snapshot. A missing id or timestamp is filled in; supplement
// display fields are filled from the rule base when absent.
func (s *StateService) AddLog(ctx context.Context, userID string, entry types.LogEntry) (*types.LogEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if err := validateEntry(&entry); err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = s.now()
	}
	entry.UserID = userID

	if entry.SupplementName == "" || entry.SupplementCategory == "" {
		if rules, err := s.rules.LoadRules(ctx); err == nil {
			if sup, ok := rules.Supplement(entry.SupplementID); ok {
				if entry.SupplementName == "" {
					entry.SupplementName = sup.Name
				}
				if entry.SupplementCategory == "" {
					entry.SupplementCategory = sup.Category
				}
			}
		} else {
			log.Printf("services: rules unavailable while adding log %s: %v", entry.ID, err)
		}
	}

	if err := s.logs.AddLog(ctx, &entry); err != nil {
		return nil, err
	}
	s.metrics.LogWrite(metrics.OpAdd)

	s.publishState(ctx, userID)
	return &entry, nil
}

// DeleteLog removes one of the user's entries and publishes the refreshed snapshot.
func (s *StateService) DeleteLog(ctx context.Context, userID, id string) error {
	if err := s.logs.DeleteLog(ctx, userID, id); err != nil {
		return err
	}
	s.metrics.LogWrite(metrics.OpDelete)
	s.publishState(ctx, userID)
	return nil
}

// ListLogs returns stored entries matching q.
func (s *StateService) ListLogs(ctx context.Context, q storage.LogQuery) ([]types.LogEntry, error) {
	return s.logs.ListLogs(ctx, q)
}

// Rules returns the current rule snapshot.
func (s *StateService) Rules(ctx context.Context) (*types.RuleSnapshot, error) {
	return s.rules.LoadRules(ctx)
}

// ImportRules replaces the rule base and announces the new version.
// Cached snapshots keyed by the old version simply stop being hit.
func (s *StateService) ImportRules(ctx context.Context, snap *types.RuleSnapshot) error {
	if err := s.rules.ReplaceRules(ctx, snap); err != nil {
		return fmt.Errorf("services: failed to replace rules: %w", err)
	}
	log.Printf("services: imported rules version %s (%d rules)", snap.Version, len(snap.Rules()))
	s.metrics.RulesImported()
	s.publish(StateEvent{Type: EventRulesUpdated, RulesVersion: snap.Version})
	return nil
}

// CacheStats exposes snapshot cache counters.
func (s *StateService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *StateService) publishState(ctx context.Context, userID string) {
	if s.publisher == nil {
		return
	}
	snap, err := s.Authoritative(ctx, userID)
	if err != nil {
		log.Printf("services: failed to derive state for %s after change: %v", userID, err)
		return
	}
	s.publish(StateEvent{
		Type:         EventStateUpdated,
		UserID:       userID,
		RulesVersion: snap.RulesVersion,
		Snapshot:     snap,
	})
}

func (s *StateService) publish(evt StateEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Broadcast(evt)
	s.metrics.EventPublished()
}

// validateEntry checks the fields a caller must supply.
func validateEntry(e *types.LogEntry) error {
	e.SupplementID = strings.TrimSpace(e.SupplementID)
	if e.SupplementID == "" {
		return fmt.Errorf("%w: supplement_id is required", storage.ErrInvalidInput)
	}
	if e.Dosage <= 0 || math.IsNaN(e.Dosage) || math.IsInf(e.Dosage, 0) {
		return fmt.Errorf("%w: dosage must be a positive number", storage.ErrInvalidInput)
	}
	if !engine.IsKnownUnit(e.Unit) {
		return fmt.Errorf("%w: unknown unit %q", storage.ErrInvalidInput, e.Unit)
	}
	return nil
}

// TargetUser scopes state events to the user they describe. Rule updates
// have no user and reach every subscriber.
func (e StateEvent) TargetUser() string {
	return e.UserID
}
