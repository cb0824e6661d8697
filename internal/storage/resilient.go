package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/stacksense/pkg/types"
)

// ErrCircuitOpen is returned when the breaker in front of a store is open
// and rejects calls without touching the backend.
var ErrCircuitOpen = errors.New("storage circuit breaker is open")

// BreakerConfig configures a ResilientStore.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive backend failures required to
	// trip the circuit. Default: 3
	MaxFailures uint32

	// Timeout is how long the circuit stays open before a trial call.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of trial calls allowed while
	// half-open. Default: 1
	HalfOpenMaxSuccesses uint32
}

func (c *BreakerConfig) applyDefaults() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxSuccesses == 0 {
		c.HalfOpenMaxSuccesses = 1
	}
}

// ResilientStore wraps a Store with a circuit breaker. Caller errors
// (not found, invalid input, conflicts, cancellation) never count as
// backend failures.
type ResilientStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker
}

// NewResilientStore wraps inner.
func NewResilientStore(inner Store, cfg BreakerConfig) *ResilientStore {
	cfg.applyDefaults()
	settings := gobreaker.Settings{
		Name:        "StorageCircuitBreaker",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: isCallerError,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("storage: circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &ResilientStore{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// isCallerError reports whether err should leave the breaker's failure
// count untouched.
func isCallerError(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, context.Canceled)
}

func (s *ResilientStore) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// AddLog implements LogStore.
func (s *ResilientStore) AddLog(ctx context.Context, entry *types.LogEntry) error {
	_, err := s.execute(ctx, func() (interface{}, error) {
		return nil, s.inner.AddLog(ctx, entry)
	})
	return err
}

// DeleteLog implements LogStore.
func (s *ResilientStore) DeleteLog(ctx context.Context, userID, id string) error {
	_, err := s.execute(ctx, func() (interface{}, error) {
		return nil, s.inner.DeleteLog(ctx, userID, id)
	})
	return err
}

// ListLogs implements LogStore.
func (s *ResilientStore) ListLogs(ctx context.Context, q LogQuery) ([]types.LogEntry, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.inner.ListLogs(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	logs, _ := result.([]types.LogEntry)
	return logs, nil
}

// LoadRules implements RuleStore.
func (s *ResilientStore) LoadRules(ctx context.Context) (*types.RuleSnapshot, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.inner.LoadRules(ctx)
	})
	if err != nil {
		return nil, err
	}
	snap, _ := result.(*types.RuleSnapshot)
	return snap, nil
}

// ReplaceRules implements RuleStore.
func (s *ResilientStore) ReplaceRules(ctx context.Context, snap *types.RuleSnapshot) error {
	_, err := s.execute(ctx, func() (interface{}, error) {
		return nil, s.inner.ReplaceRules(ctx, snap)
	})
	return err
}

// Close closes the wrapped store.
func (s *ResilientStore) Close() error {
	return s.inner.Close()
}

// State returns the breaker state: "closed", "open" or "half-open".
func (s *ResilientStore) State() string {
	switch s.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
