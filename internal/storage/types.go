package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists indicates a write collided with an existing id.
	ErrAlreadyExists = errors.New("resource already exists")
)

// MaxLogQueryLimit caps how many entries one ListLogs call returns.
const MaxLogQueryLimit = 5000

// LogQuery selects a window of one user's intake logs.
type LogQuery struct {
	// UserID is required.
	UserID string

	// Since is the inclusive lower bound on LoggedAt. Zero means unbounded.
	Since time.Time

	// Until is the inclusive upper bound on LoggedAt. Zero means unbounded.
	Until time.Time

	// Limit caps the result size (default and max: MaxLogQueryLimit).
	Limit int
}

// Normalize applies defaults and validates the query.
func (q *LogQuery) Normalize() error {
	if q.UserID == "" {
		return errors.Join(ErrInvalidInput, errors.New("user id is required"))
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && q.Until.Before(q.Since) {
		return errors.Join(ErrInvalidInput, errors.New("until is before since"))
	}
	if q.Limit <= 0 || q.Limit > MaxLogQueryLimit {
		q.Limit = MaxLogQueryLimit
	}
	return nil
}

// Bounds returns the query window in unix milliseconds, substituting the
// widest range for zero bounds.
func (q *LogQuery) Bounds() (since, until int64) {
	since, until = 0, 1<<62
	if !q.Since.IsZero() {
		since = q.Since.UnixMilli()
	}
	if !q.Until.IsZero() {
		until = q.Until.UnixMilli()
	}
	return since, until
}
