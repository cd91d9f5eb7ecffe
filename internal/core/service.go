package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"navisol/internal/blob"
	"navisol/internal/infra/persistence/memory"
	"navisol/pkg/domain"
)

// Service exposes the transactional project workflow operations.
type Service struct {
	store   PersistentStore
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   ClockFunc
	newID   func() string
	bom     BOMGenerator
	blobs   blob.Store
	authz   Authorizer
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   ClockFunc
	newID   func() string
	bom     BOMGenerator
	blobs   blob.Store
	authz   Authorizer
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		newID:   uuid.NewString,
		bom:     DefaultBOMGenerator{},
		authz:   DefaultPermissionMatrix(),
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder forwards committed audit entries to recorder.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the operation metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer used around every operation.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(clock ClockFunc) Option {
	return func(o *serviceOptions) { o.clock = clock }
}

// WithIDGenerator overrides the identifier generator (uuid by default).
func WithIDGenerator(fn func() string) Option {
	return func(o *serviceOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithBOMGenerator replaces the BOM baseline generator.
func WithBOMGenerator(gen BOMGenerator) Option {
	return func(o *serviceOptions) {
		if gen != nil {
			o.bom = gen
		}
	}
}

// WithBlobStore sets the store receiving rendered offer documents.
func WithBlobStore(store blob.Store) Option {
	return func(o *serviceOptions) {
		if store != nil {
			o.blobs = store
		}
	}
}

// WithAuthorizer replaces the role permission matrix.
func WithAuthorizer(authz Authorizer) Option {
	return func(o *serviceOptions) {
		if authz != nil {
			o.authz = authz
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	blobs := cfg.blobs
	if blobs == nil {
		blobs = blob.NewMemory()
	}
	return &Service{
		store:   store,
		logger:  cfg.logger,
		audit:   cfg.audit,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
		clock:   cfg.clock,
		newID:   cfg.newID,
		bom:     cfg.bom,
		blobs:   blobs,
		authz:   cfg.authz,
	}
}

// NewInMemoryService creates a service over an in-memory store. A nil engine
// selects NewDefaultRulesEngine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Blobs returns the document blob store.
func (s *Service) Blobs() blob.Store { return s.blobs }

// Authorizer returns the permission gate in use.
func (s *Service) Authorizer() Authorizer { return s.authz }

func (s *Service) now() time.Time { return s.clock.Now() }

// run wraps an operation with tracing, metrics and logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", op, r)
		}
		duration := time.Since(started)
		span.End(err)
		s.metrics.Observe(ctx, op, err == nil, duration)
		if err != nil {
			s.logger.Error("operation failed", "operation", op, "error", err, "kind", string(domain.KindOf(err)))
			return
		}
		s.logger.Debug("operation completed", "operation", op, "duration", duration)
	}()
	return fn(ctx)
}

// inTx executes fn inside a store transaction. Audit entries written by fn
// are forwarded to the audit recorder after commit; blobs written by fn are
// removed again when the transaction does not commit.
func (s *Service) inTx(ctx context.Context, fn func(*txn) error) error {
	var t *txn
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		t = &txn{tx: tx, svc: s, now: s.now()}
		return fn(t)
	})
	if err != nil {
		if t != nil {
			s.discardBlobs(ctx, t.blobKeys)
		}
		return err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "rule", v.Rule, "severity", string(v.Severity), "entity", string(v.Entity), "entity_id", v.EntityID, "message", v.Message)
	}
	for _, entry := range t.audits {
		s.audit.Record(ctx, entry)
	}
	return nil
}

func (s *Service) discardBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("discard blob", "key", key, "error", err)
		}
	}
}

func validateActor(op string, actor Actor) error {
	if actor.ID == "" {
		return domain.NewError(domain.KindValidation, op, "actor id is required").WithField("actor.id")
	}
	return nil
}

// authorize checks the permission gate for actor.
func (s *Service) authorize(op string, actor Actor, perm Permission) error {
	if err := validateActor(op, actor); err != nil {
		return err
	}
	if !s.authz.Can(actor.Role, perm) {
		return domain.AuthorizationError(op, actor.Role, perm)
	}
	return nil
}

// recordDenial writes an ACCESS_DENIED entry in its own transaction.
func (s *Service) recordDenial(ctx context.Context, op string, actor Actor, entity domain.EntityType, entityID string, cause error) {
	desc := fmt.Sprintf("%s denied: %v", op, cause)
	s.recordStandalone(ctx, domain.AuditAccessDenied, entity, entityID, desc, actor)
}

// recordFailure writes a failure entry in its own transaction. The kind
// follows the operation: amendment operations record AMENDMENT_FAILED, status
// transitions TRANSITION_FAILED.
func (s *Service) recordFailure(ctx context.Context, op string, actor Actor, entity domain.EntityType, entityID string, cause error) {
	desc := fmt.Sprintf("%s aborted: %v", op, cause)
	s.recordStandalone(ctx, failureKind(op), entity, entityID, desc, actor)
}

func failureKind(op string) domain.AuditKind {
	if strings.HasSuffix(op, "_amendment") {
		return domain.AuditAmendmentFailed
	}
	return domain.AuditTransitionFailed
}

func (s *Service) recordStandalone(ctx context.Context, kind domain.AuditKind, entity domain.EntityType, entityID, desc string, actor Actor) {
	err := s.inTx(ctx, func(t *txn) error {
		_, err := t.record(kind, entity, entityID, desc, nil, nil, actor)
		return err
	})
	if err != nil {
		s.logger.Error("record audit", "kind", string(kind), "entity_id", entityID, "error", err)
	}
}

// afterFailure records the denial or failure entry matching err.
func (s *Service) afterFailure(ctx context.Context, op string, actor Actor, entity domain.EntityType, entityID string, err error, failureRecord bool) {
	switch {
	case err == nil:
	case domain.KindOf(err) == domain.KindAuthorization:
		s.recordDenial(ctx, op, actor, entity, entityID, err)
	case failureRecord && domain.KindOf(err) != domain.KindNotFound && domain.KindOf(err) != domain.KindValidation:
		s.recordFailure(ctx, op, actor, entity, entityID, err)
	}
}

// mutate runs fn as one audited, transactional operation. Authorization
// denials, and failures when failureRecord is set, are recorded after rollback.
func (s *Service) mutate(ctx context.Context, op string, actor Actor, entity domain.EntityType, entityID string, failureRecord bool, fn func(*txn) error) error {
	return s.run(ctx, op, func(ctx context.Context) error {
		err := s.inTx(ctx, fn)
		s.afterFailure(ctx, op, actor, entity, entityID, err, failureRecord)
		return err
	})
}
