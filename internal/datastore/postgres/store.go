// Package postgres persists datasets to a Postgres JSONB snapshot table
// while the memory store serves reads.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"ledgerlens/internal/datastore"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/ledgerlens?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the function used to open connections and returns
// a restore func. Tests use it to inject sqlmock.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

// Store is a Postgres-backed dataset store
type Store struct {
	*datastore.Persistent
	db *sql.DB
}

var _ datastore.Backend = (*Store)(nil)

// Open connects with dsn (defaultDSN when empty), ensures the snapshot
// table and hydrates mem
func Open(ctx context.Context, dsn string, mem *datastore.Store) (*Store, error) {
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
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	p, err := datastore.NewPersistent(ctx, mem, &sink{db: db})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Persistent: p, db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

const createTable = `CREATE TABLE IF NOT EXISTS datasets (
	name TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func ensureTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("ensure datasets table: %w", err)
	}
	return nil
}

type sink struct {
	db *sql.DB
}

const (
	selectSnapshots = `SELECT name, payload FROM datasets ORDER BY name`
	upsertSnapshot  = `INSERT INTO datasets (name, payload, updated_at) VALUES ($1, $2, now()) ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	deleteSnapshot  = `DELETE FROM datasets WHERE name = $1`
)

func (k *sink) LoadAll(ctx context.Context) ([]datastore.Snapshot, error) {
	rows, err := k.db.QueryContext(ctx, selectSnapshots)
	if err != nil {
		return nil, fmt.Errorf("select datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []datastore.Snapshot
	for rows.Next() {
		var (
			name    string
			payload []byte
		)
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var snap datastore.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		snap.Name = name
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return snaps, nil
}

func (k *sink) Save(ctx context.Context, snap datastore.Snapshot) (retErr error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", snap.Name, err)
	}
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, upsertSnapshot, snap.Name, data); err != nil {
		return fmt.Errorf("upsert %s: %w", snap.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (k *sink) Delete(ctx context.Context, name string) error {
	if _, err := k.db.ExecContext(ctx, deleteSnapshot, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func (k *sink) Close() error { return k.db.Close() }
