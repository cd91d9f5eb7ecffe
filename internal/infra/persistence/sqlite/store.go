// Package sqlite provides a SQLite-backed persistent store that keeps the
// in-memory transaction semantics and writes committed records through to a
// single records table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"navisol/internal/infra/persistence/memory"
	"navisol/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "navisol.db"

// Store persists records to SQLite while reusing the in-memory implementation
// for transactions and rule evaluation.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the SQLite database at path and hydrates the
// in-memory state from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers; the memory store already holds a global lock
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		namespace TEXT NOT NULL,
		id TEXT NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (namespace, id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT namespace, id, payload FROM records`)
	if err != nil {
		return fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{Buckets: map[domain.Namespace]map[string]json.RawMessage{}}
	for rows.Next() {
		var (
			ns      string
			id      string
			payload []byte
		)
		if err := rows.Scan(&ns, &id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if !json.Valid(payload) {
			return fmt.Errorf("decode %s/%s: invalid JSON payload", ns, id)
		}
		bucket, ok := snapshot.Buckets[domain.Namespace(ns)]
		if !ok {
			bucket = map[string]json.RawMessage{}
			snapshot.Buckets[domain.Namespace(ns)] = bucket
		}
		bucket[id] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context, changes []domain.Change) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE namespace = ? AND id = ?`, string(change.Namespace), change.ID); err != nil {
				return fmt.Errorf("delete %s/%s: %w", change.Namespace, change.ID, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO records(namespace,id,payload) VALUES(?,?,?) ON CONFLICT(namespace,id) DO UPDATE SET payload=excluded.payload`,
			string(change.Namespace), change.ID, []byte(change.After.Raw())); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", change.Namespace, change.ID, err)
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn within a transaction and writes its changes to
// SQLite before the new state becomes visible.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	return s.RunInTransactionWithCommit(ctx, fn, s.persist)
}

// Save writes a single record through to SQLite.
func (s *Store) Save(ctx context.Context, ns domain.Namespace, id string, payload json.RawMessage) error {
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.Save(ns, id, payload)
	})
	return err
}

// Delete removes a single record from SQLite.
func (s *Store) Delete(ctx context.Context, ns domain.Namespace, id string) error {
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.Delete(ns, id)
	})
	return err
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
