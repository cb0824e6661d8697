package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/stacksense/internal/storage"
	"github.com/scrypster/stacksense/pkg/types"
)

const versionKey = "version"

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// DB exposes the connection pool for instrumentation.
func (s *Store) DB() *sql.DB {
	return s.db
}

// NewStore creates a new SQLite store with WAL self-healing.
// If the initial open fails due to stale WAL files (left behind by a crashed
// process), it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func NewStore(dsn string) (*Store, error) {
	store, err := openStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func openStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// AddLog inserts a new intake log entry.
func (s *Store) AddLog(ctx context.Context, entry *types.LogEntry) error {
	if entry == nil {
		return storage.ErrInvalidInput
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: log ID is required", storage.ErrInvalidInput)
	}
	if entry.UserID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO intake_logs (
			id, user_id, supplement_id, dosage, unit, logged_at,
			supplement_name, supplement_category
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.SupplementID,
		entry.Dosage,
		entry.Unit,
		entry.LoggedAt.UnixMilli(),
		entry.SupplementName,
		entry.SupplementCategory,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: log %s", storage.ErrAlreadyExists, entry.ID)
		}
		return fmt.Errorf("sqlite: failed to store log: %w", err)
	}
	return nil
}

// DeleteLog removes one of userID's log entries.
func (s *Store) DeleteLog(ctx context.Context, userID, id string) error {
	if userID == "" || id == "" {
		return fmt.Errorf("%w: user ID and log ID are required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM intake_logs WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete log: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListLogs returns the user's entries within the query window, newest first.
func (s *Store) ListLogs(ctx context.Context, q storage.LogQuery) ([]types.LogEntry, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	since, until := q.Bounds()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, supplement_id, dosage, unit, logged_at,
			supplement_name, supplement_category
		FROM intake_logs
		WHERE user_id = ? AND logged_at >= ? AND logged_at <= ?
		ORDER BY logged_at DESC, id DESC
		LIMIT ?`,
		q.UserID, since, until, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list logs: %w", err)
	}
	defer rows.Close()

	logs := []types.LogEntry{}
	for rows.Next() {
		var entry types.LogEntry
		var loggedAt int64
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.SupplementID, &entry.Dosage, &entry.Unit, &loggedAt,
			&entry.SupplementName, &entry.SupplementCategory,
		); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan log: %w", err)
		}
		entry.LoggedAt = time.UnixMilli(loggedAt).UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate logs: %w", err)
	}
	return logs, nil
}

// LoadRules reads the whole rule base.
func (s *Store) LoadRules(ctx context.Context) (*types.RuleSnapshot, error) {
	var version string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM rule_meta WHERE key = ?", versionKey).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: failed to read rule version: %w", err)
	}

	sups, err := s.loadSupplements(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.loadRuleRows(ctx)
	if err != nil {
		return nil, err
	}
	limits, err := s.loadLimits(ctx)
	if err != nil {
		return nil, err
	}

	return storage.AssembleSnapshot(version, sups, rules, limits)
}

func (s *Store) loadSupplements(ctx context.Context) ([]storage.SupplementRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, has_kinetics, kinetics_type, peak_minutes,
			half_life_minutes, elemental_factor, bioavailability
		FROM supplements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query supplements: %w", err)
	}
	defer rows.Close()

	var out []storage.SupplementRow
	for rows.Next() {
		var r storage.SupplementRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.HasKinetics, &r.KineticsType,
			&r.PeakMinutes, &r.HalfLifeMinutes, &r.ElementalFactor, &r.Bioavailability); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan supplement: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) loadRuleRows(ctx context.Context) ([]storage.RuleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, position, source_id, source_name, target_id, target_name, severity,
			interaction_type, mechanism, suggestion,
			min_ratio, max_ratio, optimal_ratio, message,
			min_hours_apart, reason
		FROM rules ORDER BY kind, position`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []storage.RuleRow
	for rows.Next() {
		var r storage.RuleRow
		if err := rows.Scan(&r.ID, &r.Kind, &r.Position,
			&r.SourceID, &r.SourceName, &r.TargetID, &r.TargetName, &r.Severity,
			&r.InteractionType, &r.Mechanism, &r.Suggestion,
			&r.MinRatio, &r.MaxRatio, &r.OptimalRatio, &r.Message,
			&r.MinHoursApart, &r.Reason); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) loadLimits(ctx context.Context) (types.SafetyLimits, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT category, limit_value, unit FROM safety_limits")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query safety limits: %w", err)
	}
	defer rows.Close()

	limits := types.SafetyLimits{}
	for rows.Next() {
		var category string
		var l types.SafetyLimit
		if err := rows.Scan(&category, &l.Limit, &l.Unit); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan safety limit: %w", err)
		}
		limits[category] = l
	}
	return limits, rows.Err()
}

// ReplaceRules swaps the whole rule base in a single transaction.
func (s *Store) ReplaceRules(ctx context.Context, snap *types.RuleSnapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: rule snapshot is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"supplements", "rules", "safety_limits"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqlite: failed to clear %s: %w", table, err)
		}
	}

	for _, r := range storage.FlattenSupplements(snap) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO supplements (id, name, category, has_kinetics, kinetics_type,
				peak_minutes, half_life_minutes, elemental_factor, bioavailability)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Name, r.Category, r.HasKinetics, r.KineticsType,
			r.PeakMinutes, r.HalfLifeMinutes, r.ElementalFactor, r.Bioavailability); err != nil {
			return fmt.Errorf("sqlite: failed to insert supplement %s: %w", r.ID, err)
		}
	}

	for _, r := range storage.FlattenRules(snap) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rules (id, kind, position, source_id, source_name, target_id, target_name, severity,
				interaction_type, mechanism, suggestion,
				min_ratio, max_ratio, optimal_ratio, message,
				min_hours_apart, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, string(r.Kind), r.Position, r.SourceID, r.SourceName, r.TargetID, r.TargetName, r.Severity,
			r.InteractionType, r.Mechanism, r.Suggestion,
			r.MinRatio, r.MaxRatio, r.OptimalRatio, r.Message,
			r.MinHoursApart, r.Reason); err != nil {
			return fmt.Errorf("sqlite: failed to insert rule %s: %w", r.ID, err)
		}
	}

	for category, l := range snap.SafetyLimits {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO safety_limits (category, limit_value, unit) VALUES (?, ?, ?)",
			category, l.Limit, l.Unit); err != nil {
			return fmt.Errorf("sqlite: failed to insert safety limit %s: %w", category, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rule_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		versionKey, snap.Version); err != nil {
		return fmt.Errorf("sqlite: failed to write rule version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit rules: %w", err)
	}
	return nil
}

// Close flushes the WAL into the main database file and releases resources.
// The TRUNCATE checkpoint removes the -shm and -wal files so that the next
// process can open the database without encountering stale WAL state.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}

	return s.db.Close()
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Handles bare paths ("/path/to/db.sqlite") and file: URIs ("file:/path/to/db.sqlite?mode=rwc").
// Returns empty string for in-memory databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for dbPath and no other
// process holds them open. Returns false if lsof is unavailable.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	output, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof exits 1 when nothing has the files open.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
