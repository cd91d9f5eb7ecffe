// Package postgres keeps the in-memory transaction semantics and writes every
// committed change set through to a Postgres records table in one SQL
// transaction. Connections go through pgx's database/sql adapter.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"navisol/internal/infra/persistence/memory"
	"navisol/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultDSN is used when no DSN is configured.
const DefaultDSN = "postgres://localhost/navisol?sslmode=disable"

const (
	createRecords = `CREATE TABLE IF NOT EXISTS records (
		namespace TEXT NOT NULL,
		id TEXT NOT NULL,
		payload JSONB NOT NULL,
		PRIMARY KEY (namespace, id)
	)`
	selectRecords = `SELECT namespace, id, payload FROM records`
	upsertRecord  = `INSERT INTO records(namespace,id,payload) VALUES($1,$2,$3) ON CONFLICT(namespace,id) DO UPDATE SET payload=EXCLUDED.payload`
	deleteRecord  = `DELETE FROM records WHERE namespace = $1 AND id = $2`
)

// Store is a write-through memory store.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore parses dsn with pgx, connects and hydrates the memory state.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	db := stdlib.OpenDB(*cfg)
	s, err := Open(context.Background(), db, engine)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Open builds a store over an existing handle. The records table is created
// when missing.
func Open(ctx context.Context, db *sql.DB, engine *domain.RulesEngine) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createRecords); err != nil {
		return nil, fmt.Errorf("create records table: %w", err)
	}
	snapshot, err := readRecords(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction publishes the new state only after Postgres commits.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	return s.RunInTransactionWithCommit(ctx, fn, s.writeChanges)
}

// Save upserts one record.
func (s *Store) Save(ctx context.Context, ns domain.Namespace, id string, payload json.RawMessage) error {
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.Save(ns, id, payload) })
	return err
}

// Delete removes one record.
func (s *Store) Delete(ctx context.Context, ns domain.Namespace, id string) error {
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.Delete(ns, id) })
	return err
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func readRecords(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, selectRecords)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	buckets := map[domain.Namespace]map[string]json.RawMessage{}
	for rows.Next() {
		var ns, id string
		var payload []byte
		if err := rows.Scan(&ns, &id, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan records: %w", err)
		}
		if !json.Valid(payload) {
			return memory.Snapshot{}, fmt.Errorf("record %s/%s holds invalid JSON", ns, id)
		}
		namespace := domain.Namespace(ns)
		if buckets[namespace] == nil {
			buckets[namespace] = map[string]json.RawMessage{}
		}
		buckets[namespace][id] = json.RawMessage(payload)
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate records: %w", err)
	}
	return memory.Snapshot{Buckets: buckets}, nil
}

func (s *Store) writeChanges(ctx context.Context, changes []domain.Change) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, c := range changes {
		ns := string(c.Namespace)
		if c.Action == domain.ActionDelete {
			_, err = tx.ExecContext(ctx, deleteRecord, ns, c.ID)
		} else {
			_, err = tx.ExecContext(ctx, upsertRecord, ns, c.ID, []byte(c.After.Raw()))
		}
		if err != nil {
			return fmt.Errorf("%s %s/%s: %w", c.Action, ns, c.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
