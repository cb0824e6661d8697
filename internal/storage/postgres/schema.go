// Package postgres provides PostgreSQL implementations of storage interfaces.
package postgres

// Schema contains the SQL statements to create the database schema for
// PostgreSQL. All statements use IF NOT EXISTS.
const Schema = `
CREATE TABLE IF NOT EXISTS supplements (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    has_kinetics BOOLEAN NOT NULL DEFAULT FALSE,
    kinetics_type TEXT NOT NULL DEFAULT '',
    peak_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
    half_life_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
    elemental_factor DOUBLE PRECISION NOT NULL DEFAULT 0,
    bioavailability DOUBLE PRECISION NOT NULL DEFAULT 0
);

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
    min_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
    optimal_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    min_hours_apart DOUBLE PRECISION NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_rules_kind ON rules(kind, position);

CREATE TABLE IF NOT EXISTS safety_limits (
    category TEXT PRIMARY KEY,
    limit_value DOUBLE PRECISION NOT NULL,
    unit TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rule_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS intake_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    supplement_id TEXT NOT NULL,
    dosage DOUBLE PRECISION NOT NULL,
    unit TEXT NOT NULL,
    logged_at TIMESTAMPTZ NOT NULL,
    supplement_name TEXT NOT NULL DEFAULT '',
    supplement_category TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_intake_logs_user_time ON intake_logs(user_id, logged_at DESC);
`
