// Package postgres keeps off-host copies of store snapshots and participant
// backups in Postgres through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"farmvault/internal/snapshot"
	"farmvault/pkg/domain"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ snapshot.Sink = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/farmvault?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		generation TEXT PRIMARY KEY,
		taken_at TIMESTAMPTZ NOT NULL,
		payload BYTEA NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS participant_backups (
		kind TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Store is a snapshot.Sink that also mirrors participant backups.
type Store struct {
	db   *sql.DB
	keep int
	mu   sync.Mutex
}

// NewStore opens dsn (falls back to defaultDSN), pings it and ensures the
// tables exist. When keep is positive older snapshots are pruned on Save.
func NewStore(ctx context.Context, dsn string, keep int) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return &Store{db: db, keep: keep}, nil
}

// Name implements snapshot.Sink.
func (s *Store) Name() string { return "postgres" }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts env and prunes old generations in one transaction.
func (s *Store) Save(ctx context.Context, env snapshot.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots(generation,taken_at,payload) VALUES($1,$2,$3) ON CONFLICT(generation) DO NOTHING`,
		env.Generation.String(), env.TakenAt.UTC(), env.Payload); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if s.keep > 0 {
		if err := prune(ctx, tx, s.keep); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func prune(ctx context.Context, tx *sql.Tx, keep int) error {
	rows, err := tx.QueryContext(ctx, `SELECT generation FROM snapshots ORDER BY taken_at DESC`)
	if err != nil {
		return fmt.Errorf("select generations: %w", err)
	}
	var stale []string
	for i := 0; rows.Next(); i++ {
		var gen string
		if err := rows.Scan(&gen); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan generation: %w", err)
		}
		if i >= keep {
			stale = append(stale, gen)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate generations: %w", err)
	}
	_ = rows.Close()
	for _, gen := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE generation = $1`, gen); err != nil {
			return fmt.Errorf("prune %s: %w", gen, err)
		}
	}
	return nil
}

// Load implements snapshot.Sink.
func (s *Store) Load(ctx context.Context) (snapshot.Envelope, error) {
	var (
		gen string
		env snapshot.Envelope
	)
	err := s.db.QueryRowContext(ctx, `SELECT generation, taken_at, payload FROM snapshots ORDER BY taken_at DESC LIMIT 1`).
		Scan(&gen, &env.TakenAt, &env.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Envelope{}, snapshot.ErrNoSnapshot
	}
	if err != nil {
		return snapshot.Envelope{}, fmt.Errorf("select snapshot: %w", err)
	}
	if env.Generation, err = uuid.Parse(gen); err != nil {
		return snapshot.Envelope{}, fmt.Errorf("snapshot generation %q: %w", gen, err)
	}
	env.TakenAt = env.TakenAt.UTC()
	return env, nil
}

// SaveBackups upserts one JSON document per participant kind.
func (s *Store) SaveBackups(ctx context.Context, docs map[domain.EntityType][]byte, at time.Time) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for kind, doc := range docs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO participant_backups(kind,payload,updated_at) VALUES($1,$2,$3) ON CONFLICT(kind) DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
			string(kind), doc, at.UTC()); err != nil {
			return fmt.Errorf("upsert %s: %w", kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
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
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		out[domain.EntityType(kind)] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}
	return out, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
