// Package sqlite persists datasets to a single SQLite file. The memory store
// serves every read; each successful write upserts the affected dataset's
// snapshot as a JSON blob.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"ledgerlens/internal/datastore"
)

// DefaultPath is used when no database path is configured
const DefaultPath = "data/ledgerlens.db"

// Store is a SQLite-backed dataset store
type Store struct {
	*datastore.Persistent
	sink *sink
	path string
}

var _ datastore.Backend = (*Store)(nil)

// Open creates or opens the database at path and hydrates mem from it
func Open(ctx context.Context, path string, mem *datastore.Store) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer connection avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS datasets (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create datasets table: %w", err)
	}

	sk := &sink{db: db}
	p, err := datastore.NewPersistent(ctx, mem, sk)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Persistent: p, sink: sk, path: path}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.sink.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

type sink struct {
	db *sql.DB
}

func (k *sink) LoadAll(ctx context.Context) ([]datastore.Snapshot, error) {
	rows, err := k.db.QueryContext(ctx, `SELECT name, payload FROM datasets ORDER BY name`)
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
	return snaps, rows.Err()
}

func (k *sink) Save(ctx context.Context, snap datastore.Snapshot) (retErr error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", snap.Name, err)
	}
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets(name,payload) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET payload=excluded.payload`,
		snap.Name, data); err != nil {
		return fmt.Errorf("upsert %s: %w", snap.Name, err)
	}
	return tx.Commit()
}

func (k *sink) Delete(ctx context.Context, name string) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func (k *sink) Close() error { return k.db.Close() }
