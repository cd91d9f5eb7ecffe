// Package testutil fakes the records table behind a database/sql driver so the
// postgres store can be tested without a server. Statements are recognised by
// their leading keyword only; the store issues a fixed set of them.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrInjected is returned by every operation a Records fault flag switches on.
var ErrInjected = errors.New("injected failure")

var driverSeq atomic.Int64

type recordKey struct{ namespace, id string }

// Records is a fake records table. Exported flags inject failures.
type Records struct {
	mu         sync.Mutex
	rows       map[recordKey][]byte
	statements []string

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
}

// Open registers a fresh driver instance and returns a handle to it.
func Open() (*sql.DB, *Records) {
	rec := &Records{rows: map[recordKey][]byte{}}
	name := fmt.Sprintf("records-stub-%d", driverSeq.Add(1))
	sql.Register(name, recordsDriver{rec})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, rec
}

// Seed stores a row directly, bypassing the driver.
func (r *Records) Seed(namespace, id string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[recordKey{namespace, id}] = payload
}

// Payload returns the stored payload for namespace/id.
func (r *Records) Payload(namespace, id string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[recordKey{namespace, id}]
	return p, ok
}

// Len reports the number of stored rows.
func (r *Records) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Statements returns every statement executed so far.
func (r *Records) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statements...)
}

type recordsDriver struct{ rec *Records }

func (d recordsDriver) Open(string) (driver.Conn, error) { return conn{d.rec}, nil }

type conn struct{ rec *Records }

func (c conn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare unsupported") }
func (c conn) Close() error                        { return nil }
func (c conn) Begin() (driver.Tx, error)           { return c.BeginTx(context.Background(), driver.TxOptions{}) }

func (c conn) Ping(context.Context) error {
	if c.rec.FailPing {
		return ErrInjected
	}
	return nil
}

// Writes apply immediately; the store commits or fails as a whole, and the
// memory state is only swapped after Commit succeeds.
func (c conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.rec.FailBegin {
		return nil, ErrInjected
	}
	return tx{c.rec}, nil
}

func (c conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	r := c.rec
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = append(r.statements, query)
	if r.FailExec {
		return nil, ErrInjected
	}
	switch keyword(query) {
	case "CREATE":
		return driver.RowsAffected(0), nil
	case "INSERT":
		if len(args) != 3 {
			return nil, fmt.Errorf("insert wants 3 args, got %d", len(args))
		}
		payload, ok := args[2].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload must be []byte, got %T", args[2].Value)
		}
		r.rows[keyOf(args)] = append([]byte(nil), payload...)
		return driver.RowsAffected(1), nil
	case "DELETE":
		if len(args) != 2 {
			return nil, fmt.Errorf("delete wants 2 args, got %d", len(args))
		}
		k := keyOf(args)
		if _, ok := r.rows[k]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(r.rows, k)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

func (c conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	r := c.rec
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = append(r.statements, query)
	if keyword(query) != "SELECT" {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	keys := make([]recordKey, 0, len(r.rows))
	for k := range r.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].namespace != keys[j].namespace {
			return keys[i].namespace < keys[j].namespace
		}
		return keys[i].id < keys[j].id
	})
	out := &rows{}
	for _, k := range keys {
		out.data = append(out.data, []driver.Value{k.namespace, k.id, r.rows[k]})
	}
	return out, nil
}

func keyword(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func keyOf(args []driver.NamedValue) recordKey {
	return recordKey{fmt.Sprint(args[0].Value), fmt.Sprint(args[1].Value)}
}

type tx struct{ rec *Records }

func (t tx) Commit() error {
	if t.rec.FailCommit {
		return ErrInjected
	}
	return nil
}

func (t tx) Rollback() error { return nil }

type rows struct {
	data [][]driver.Value
	next int
}

func (r *rows) Columns() []string { return []string{"namespace", "id", "payload"} }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next == len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.next])
	r.next++
	return nil
}
