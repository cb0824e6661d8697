// Package backup takes periodic point-in-time copies of the SQLite intake
// database and prunes old copies.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	filePrefix = "stacksense-"
	fileSuffix = ".db"
	// Sorts lexically in creation order.
	stampLayout = "20060102-150405.000000"
)

// Config configures a Service.
type Config struct {
	// DBPath is the live SQLite database file.
	DBPath string

	// Dir receives the backup files. Created if missing.
	Dir string

	// Interval between scheduled backups (default: 1 hour)
	Interval time.Duration

	// Keep is how many of the newest backups survive pruning (default: 24)
	Keep int
}

// Info describes one backup file.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Service snapshots a SQLite database on a schedule.
type Service struct {
	cfg Config
	now func() time.Time
}

// New validates cfg and prepares the backup directory.
func New(cfg Config) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("backup: database path is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("backup: backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 24
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}
	return &Service{cfg: cfg, now: time.Now}, nil
}

// Run takes a backup every Interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("backup: scheduled every %v into %s", s.cfg.Interval, s.cfg.Dir)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := s.Snapshot(ctx)
			if err != nil {
				log.Printf("backup: scheduled backup failed: %v", err)
				continue
			}
			log.Printf("backup: wrote %s (%d bytes)", info.Path, info.Size)
		}
	}
}

// Snapshot writes a verified copy of the database now and prunes old copies.
// A copy that fails its integrity check is removed.
func (s *Service) Snapshot(ctx context.Context) (*Info, error) {
	if _, err := os.Stat(s.cfg.DBPath); err != nil {
		return nil, fmt.Errorf("backup: database not found: %w", err)
	}

	stamp := s.now().UTC()
	dest := filepath.Join(s.cfg.Dir, filePrefix+stamp.Format(stampLayout)+fileSuffix)

	if err := vacuumInto(ctx, s.cfg.DBPath, dest); err != nil {
		return nil, err
	}
	if err := verify(ctx, dest); err != nil {
		_ = os.Remove(dest)
		return nil, err
	}

	st, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat backup: %w", err)
	}

	if err := s.prune(); err != nil {
		log.Printf("backup: failed to prune old backups: %v", err)
	}
	return &Info{Path: dest, Timestamp: stamp, Size: st.Size()}, nil
}

// List returns the backups in Dir, newest first. Files not named like a
// backup are ignored.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read backup directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		stamp, err := time.Parse(stampLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Path: filepath.Join(s.cfg.Dir, name), Timestamp: stamp, Size: fi.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *Service) prune() error {
	backups, err := s.List()
	if err != nil {
		return err
	}
	if len(backups) <= s.cfg.Keep {
		return nil
	}
	var errs []error
	for _, b := range backups[s.cfg.Keep:] {
		if err := os.Remove(b.Path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// vacuumInto copies src to dest with VACUUM INTO, which yields a
// consistent copy even while the source is in WAL mode.
func vacuumInto(ctx context.Context, src, dest string) error {
	db, err := sql.Open("sqlite", src)
	if err != nil {
		return fmt.Errorf("backup: failed to open source database: %w", err)
	}
	defer func() { _ = db.Close() }()

	quoted := strings.ReplaceAll(dest, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("backup: failed to copy database: %w", err)
	}
	return nil
}

func verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("backup: failed to open backup: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check failed: %s", result)
	}
	return nil
}
