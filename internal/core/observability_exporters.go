package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"time"

	"navisol/pkg/domain"
)

// OperationTrace is one finished service operation.
type OperationTrace struct {
	Operation  string           `json:"operation"`
	Status     string           `json:"status"`
	Kind       domain.ErrorKind `json:"kind,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMS float64          `json:"duration_ms"`
	StartedAt  time.Time        `json:"started_at"`
}

// RingTracer keeps the most recent finished operations in memory and
// optionally writes every one as a JSON line.
type RingTracer struct {
	mu   sync.Mutex
	buf  []OperationTrace
	next int
	full bool
	enc  *json.Encoder
}

// NewRingTracer keeps the last capacity operations (at least one). A nil w
// disables JSON output.
func NewRingTracer(capacity int, w io.Writer) *RingTracer {
	if capacity < 1 {
		capacity = 1
	}
	t := &RingTracer{buf: make([]OperationTrace, capacity)}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Publish exposes Recent under name in expvar's /debug/vars.
func (t *RingTracer) Publish(name string) error {
	if expvar.Get(name) != nil {
		return fmt.Errorf("expvar %q already published", name)
	}
	expvar.Publish(name, expvar.Func(func() any { return t.Recent() }))
	return nil
}

// Recent returns the retained operations, oldest first.
func (t *RingTracer) Recent() []OperationTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]OperationTrace(nil), t.buf[:t.next]...)
	}
	out := make([]OperationTrace, 0, len(t.buf))
	out = append(out, t.buf[t.next:]...)
	return append(out, t.buf[:t.next]...)
}

// Start implements Tracer.
func (t *RingTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &ringSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

func (t *RingTracer) add(entry OperationTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf[t.next] = entry
	t.next++
	if t.next == len(t.buf) {
		t.next, t.full = 0, true
	}
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

type ringSpan struct {
	tracer    *RingTracer
	operation string
	started   time.Time
}

func (s *ringSpan) End(err error) {
	entry := OperationTrace{
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
	}
	if err != nil {
		entry.Status = "error"
		entry.Kind = domain.KindOf(err)
		entry.Error = err.Error()
	}
	s.tracer.add(entry)
}
