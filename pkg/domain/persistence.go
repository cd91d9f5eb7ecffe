package domain

import (
	"context"
	"encoding/json"
)

// Record is a persisted entity in its JSON form.
type Record struct {
	Namespace Namespace
	ID        string
	Payload   json.RawMessage
}

// Filter selects records during Query. A nil filter matches everything.
type Filter func(Record) bool

// TransactionView provides read-only access to persisted records.
// Results of GetAll and Query are ordered by record ID.
type TransactionView interface {
	GetByID(ns Namespace, id string) (json.RawMessage, bool)
	GetAll(ns Namespace) []Record
	Query(ns Namespace, filter Filter) []Record
}

// Transaction exposes the operations a persistence implementation must support
// within an atomic scope. Writes become visible to the same transaction
// immediately and to other callers only after commit.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView
	Save(ns Namespace, id string, payload json.RawMessage) error
	Delete(ns Namespace, id string) error
}

// PersistentStore is the persistence adapter consumed by the core. Save and
// Delete outside RunInTransaction each run as a single-operation transaction.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Save(ctx context.Context, ns Namespace, id string, payload json.RawMessage) error
	GetByID(ns Namespace, id string) (json.RawMessage, bool)
	GetAll(ns Namespace) []Record
	Query(ns Namespace, filter Filter) []Record
	Delete(ctx context.Context, ns Namespace, id string) error
}

// Decode unmarshals a record payload into a typed value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
