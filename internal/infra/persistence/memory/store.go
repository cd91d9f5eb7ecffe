// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"navisol/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitFunc persists the changes of a transaction before they become visible.
// Returning an error aborts the commit.
type CommitFunc func(ctx context.Context, changes []Change) error

// Snapshot is the exported form of the store state, keyed by namespace then record ID.
type Snapshot struct {
	Buckets map[domain.Namespace]map[string]json.RawMessage `json:"buckets"`
}

type memoryState struct {
	buckets map[domain.Namespace]map[string]json.RawMessage
}

func newMemoryState() memoryState {
	st := memoryState{buckets: make(map[domain.Namespace]map[string]json.RawMessage)}
	for _, ns := range domain.Namespaces() {
		st.buckets[ns] = make(map[string]json.RawMessage)
	}
	return st
}

// clone copies the bucket maps. Payload slices are never mutated in place, so
// they are shared between the original and the clone.
func (s memoryState) clone() memoryState {
	cp := memoryState{buckets: make(map[domain.Namespace]map[string]json.RawMessage, len(s.buckets))}
	for ns, bucket := range s.buckets {
		b := make(map[string]json.RawMessage, len(bucket))
		for id, payload := range bucket {
			b[id] = payload
		}
		cp.buckets[ns] = b
	}
	return cp
}

func (s memoryState) bucket(ns domain.Namespace) map[string]json.RawMessage {
	b, ok := s.buckets[ns]
	if !ok {
		b = make(map[string]json.RawMessage)
		s.buckets[ns] = b
	}
	return b
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	out := Snapshot{Buckets: make(map[domain.Namespace]map[string]json.RawMessage, len(state.buckets))}
	for ns, bucket := range state.buckets {
		b := make(map[string]json.RawMessage, len(bucket))
		for id, payload := range bucket {
			b[id] = cloneRaw(payload)
		}
		out.Buckets[ns] = b
	}
	return out
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	st := newMemoryState()
	for ns, bucket := range s.Buckets {
		b := st.bucket(ns)
		for id, payload := range bucket {
			b[id] = cloneRaw(payload)
		}
	}
	return st
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	state   memoryState
	changes []Change
	index   map[changeKey]int
}

type changeKey struct {
	ns domain.Namespace
	id string
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// GetByID returns a copy of the payload stored under ns/id.
func (v transactionView) GetByID(ns domain.Namespace, id string) (json.RawMessage, bool) {
	payload, ok := v.state.buckets[ns][id]
	if !ok {
		return nil, false
	}
	return cloneRaw(payload), true
}

// GetAll returns every record in ns ordered by ID.
func (v transactionView) GetAll(ns domain.Namespace) []domain.Record {
	return v.Query(ns, nil)
}

// Query returns the records in ns accepted by filter, ordered by ID.
func (v transactionView) Query(ns domain.Namespace, filter domain.Filter) []domain.Record {
	bucket := v.state.buckets[ns]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		rec := domain.Record{Namespace: ns, ID: id, Payload: cloneRaw(bucket[id])}
		if filter != nil && !filter(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransactionWithCommit(ctx, fn, nil)
}

// RunInTransactionWithCommit behaves like RunInTransaction and additionally
// hands the coalesced changes to commit after rules pass. The new state only
// replaces the current one when commit succeeds.
func (s *Store) RunInTransactionWithCommit(ctx context.Context, fn func(tx Transaction) error, commit CommitFunc) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		index: make(map[changeKey]int),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}
	changes := tx.compactChanges()

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if commit != nil && len(changes) > 0 {
		if err := commit(ctx, changes); err != nil {
			return result, fmt.Errorf("commit: %w", err)
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// Save writes a single record in its own transaction.
func (s *Store) Save(ctx context.Context, ns domain.Namespace, id string, payload json.RawMessage) error {
	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.Save(ns, id, payload)
	})
	return err
}

// Delete removes a single record in its own transaction.
func (s *Store) Delete(ctx context.Context, ns domain.Namespace, id string) error {
	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.Delete(ns, id)
	})
	return err
}

// GetByID returns the committed payload stored under ns/id.
func (s *Store) GetByID(ns domain.Namespace, id string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).GetByID(ns, id)
}

// GetAll returns every committed record in ns.
func (s *Store) GetAll(ns domain.Namespace) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).GetAll(ns)
}

// Query returns the committed records in ns accepted by filter.
func (s *Store) Query(ns domain.Namespace, filter domain.Filter) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).Query(ns, filter)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) GetByID(ns domain.Namespace, id string) (json.RawMessage, bool) {
	return newTransactionView(&tx.state).GetByID(ns, id)
}

func (tx *transaction) GetAll(ns domain.Namespace) []domain.Record {
	return newTransactionView(&tx.state).GetAll(ns)
}

func (tx *transaction) Query(ns domain.Namespace, filter domain.Filter) []domain.Record {
	return newTransactionView(&tx.state).Query(ns, filter)
}

// ErrInvalidPayload is returned when a saved payload is not valid JSON.
var ErrInvalidPayload = errors.New("payload is not valid JSON")

// Save creates or replaces a record within the transaction.
func (tx *transaction) Save(ns domain.Namespace, id string, payload json.RawMessage) error {
	if ns == "" || id == "" {
		return fmt.Errorf("save: namespace and id are required")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("save %s/%s: %w", ns, id, ErrInvalidPayload)
	}
	bucket := tx.state.bucket(ns)
	before, existed := bucket[id]
	stored := cloneRaw(payload)
	bucket[id] = stored
	action := domain.ActionCreate
	beforePayload := domain.UndefinedChangePayload()
	if existed {
		action = domain.ActionUpdate
		beforePayload = domain.NewChangePayload(before)
	}
	tx.recordChange(Change{Namespace: ns, ID: id, Action: action, Before: beforePayload, After: domain.NewChangePayload(stored)})
	return nil
}

// Delete removes a record from the transaction state.
func (tx *transaction) Delete(ns domain.Namespace, id string) error {
	bucket := tx.state.bucket(ns)
	before, ok := bucket[id]
	if !ok {
		return fmt.Errorf("%s %q not found", ns, id)
	}
	delete(bucket, id)
	tx.recordChange(Change{Namespace: ns, ID: id, Action: domain.ActionDelete, Before: domain.NewChangePayload(before), After: domain.UndefinedChangePayload()})
	return nil
}

// recordChange appends a change or folds it into an earlier change to the same record.
func (tx *transaction) recordChange(change Change) {
	key := changeKey{ns: change.Namespace, id: change.ID}
	idx, seen := tx.index[key]
	if !seen {
		tx.index[key] = len(tx.changes)
		tx.changes = append(tx.changes, change)
		return
	}
	prev := tx.changes[idx]
	merged := Change{Namespace: prev.Namespace, ID: prev.ID, Before: prev.Before, After: change.After}
	switch {
	case prev.Action == domain.ActionCreate && change.Action == domain.ActionDelete:
		merged.Action = "" // created and removed within the transaction
	case prev.Action == domain.ActionCreate:
		merged.Action = domain.ActionCreate
	case change.Action == domain.ActionDelete:
		merged.Action = domain.ActionDelete
	case prev.Action == domain.ActionDelete:
		merged.Action = domain.ActionUpdate
	default:
		merged.Action = domain.ActionUpdate
	}
	tx.changes[idx] = merged
}

func (tx *transaction) compactChanges() []Change {
	out := make([]Change, 0, len(tx.changes))
	for _, c := range tx.changes {
		if c.Action == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
