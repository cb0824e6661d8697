// Package storage provides the data-access interfaces the stacksense service
// uses to fetch intake logs and the rule base.
//
// The interfaces are kept small so that the SQLite and PostgreSQL backends
// (and test doubles) can implement them independently.
package storage

import (
	"context"

	"github.com/scrypster/stacksense/pkg/types"
)

// LogStore persists a user's intake log stream. Entries are immutable once
// written; they are only ever added or deleted.
type LogStore interface {
	// AddLog writes a new entry. ID and UserID must be set.
	// Returns ErrAlreadyExists if the id is taken.
	AddLog(ctx context.Context, entry *types.LogEntry) error

	// DeleteLog removes one of userID's entries.
	// Returns ErrNotFound if no such entry exists for that user.
	DeleteLog(ctx context.Context, userID, id string) error

	// ListLogs returns entries matching q, newest first.
	ListLogs(ctx context.Context, q LogQuery) ([]types.LogEntry, error)
}

// RuleStore persists the rule base.
type RuleStore interface {
	// LoadRules returns the current rule snapshot, including supplements and
	// safety limits. An empty store yields an empty snapshot, not an error.
	LoadRules(ctx context.Context) (*types.RuleSnapshot, error)

	// ReplaceRules atomically swaps the whole rule base for snap.
	ReplaceRules(ctx context.Context, snap *types.RuleSnapshot) error
}

// Store is a complete backend.
type Store interface {
	LogStore
	RuleStore

	// Close releases any resources held by the store.
	Close() error
}
