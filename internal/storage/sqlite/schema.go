// Package sqlite provides a SQLite implementation of the storage interfaces.
package sqlite

// Schema creates the tables used by Store. Every statement is idempotent.
const Schema = `
-- Supplement catalogue; kinetics columns are only meaningful when has_kinetics = 1
CREATE TABLE IF NOT EXISTS supplements (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    has_kinetics INTEGER NOT NULL DEFAULT 0,
    kinetics_type TEXT NOT NULL DEFAULT '',
    peak_minutes REAL NOT NULL DEFAULT 0,
    half_life_minutes REAL NOT NULL DEFAULT 0,
    elemental_factor REAL NOT NULL DEFAULT 0,
    bioavailability REAL NOT NULL DEFAULT 0
);

-- All three rule variants share one table, tagged by kind
CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK (kind IN ('interaction', 'ratio', 'timing')),
    position INTEGER NOT NULL DEFAULT 0,
    source_id TEXT NOT NULL,
    source_name TEXT NOT NULL DEFAULT '',
    target_id TEXT NOT NULL,
    target_name TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL,
    interaction_type TEXT NOT NULL DEFAULT '',
    mechanism TEXT NOT NULL DEFAULT '',
    suggestion TEXT NOT NULL DEFAULT '',
    min_ratio REAL NOT NULL DEFAULT 0,
    max_ratio REAL NOT NULL DEFAULT 0,
    optimal_ratio REAL NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    min_hours_apart REAL NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_rules_kind ON rules(kind, position);

CREATE TABLE IF NOT EXISTS safety_limits (
    category TEXT PRIMARY KEY,
    limit_value REAL NOT NULL,
    unit TEXT NOT NULL
);

-- Rule base metadata (currently only the content version)
CREATE TABLE IF NOT EXISTS rule_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Intake logs; logged_at is unix milliseconds so range scans sort correctly
CREATE TABLE IF NOT EXISTS intake_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    supplement_id TEXT NOT NULL,
    dosage REAL NOT NULL,
    unit TEXT NOT NULL,
    logged_at INTEGER NOT NULL,
    supplement_name TEXT NOT NULL DEFAULT '',
    supplement_category TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_intake_logs_user_time ON intake_logs(user_id, logged_at);
`
