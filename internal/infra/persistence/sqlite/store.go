// Package sqlite keeps snapshots and participant backups in a local SQLite
// file using the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"farmvault/internal/snapshot"
	"farmvault/pkg/domain"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ snapshot.Sink = (*Store)(nil)

// Store is a snapshot.Sink over one SQLite database.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	keep int
}

// NewStore opens or creates the database at path (default farmvault.db).
// When keep is positive only the newest keep snapshots survive a Save.
func NewStore(ctx context.Context, path string, keep int) (*Store, error) {
	if path == "" {
		path = "farmvault.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS snapshots (
		generation TEXT PRIMARY KEY,
		taken_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS participant_backups (
		kind TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create backups table: %w", err)
	}
	return &Store{db: db, path: path, keep: keep}, nil
}

// Name implements snapshot.Sink.
func (s *Store) Name() string { return "sqlite" }

// Save implements snapshot.Sink.
func (s *Store) Save(ctx context.Context, env snapshot.Envelope) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots(generation,taken_at,payload) VALUES(?,?,?) ON CONFLICT(generation) DO NOTHING`,
		env.Generation.String(), env.TakenAt.UnixNano(), env.Payload); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if s.keep > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE generation NOT IN (
			SELECT generation FROM snapshots ORDER BY taken_at DESC LIMIT ?)`, s.keep); err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
	}
	return tx.Commit()
}

// Load implements snapshot.Sink.
func (s *Store) Load(ctx context.Context) (snapshot.Envelope, error) {
	var (
		gen     string
		takenAt int64
		env     snapshot.Envelope
	)
	err := s.db.QueryRowContext(ctx, `SELECT generation, taken_at, payload FROM snapshots ORDER BY taken_at DESC LIMIT 1`).
		Scan(&gen, &takenAt, &env.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Envelope{}, snapshot.ErrNoSnapshot
	}
	if err != nil {
		return snapshot.Envelope{}, fmt.Errorf("select snapshot: %w", err)
	}
	if env.Generation, err = uuid.Parse(gen); err != nil {
		return snapshot.Envelope{}, fmt.Errorf("snapshot generation %q: %w", gen, err)
	}
	env.TakenAt = time.Unix(0, takenAt).UTC()
	return env, nil
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}

// SaveBackups upserts one JSON document per participant kind.
func (s *Store) SaveBackups(ctx context.Context, docs map[domain.EntityType][]byte, at time.Time) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for kind, doc := range docs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO participant_backups(kind,payload,updated_at) VALUES(?,?,?) ON CONFLICT(kind) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
			string(kind), doc, at.UnixNano()); err != nil {
			return fmt.Errorf("upsert %s: %w", kind, err)
		}
	}
	return tx.Commit()
}

// Backups returns the stored JSON document of every kind.
func (s *Store) Backups(ctx context.Context) (map[domain.EntityType][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, payload FROM participant_backups`)
	if err != nil {
		return nil, fmt.Errorf("select backups: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := map[domain.EntityType][]byte{}
	for rows.Next() {
		var (
			kind    string
			payload []byte
		)
		if err := rows.Scan(&kind, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[domain.EntityType(kind)] = payload
	}
	return out, rows.Err()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
