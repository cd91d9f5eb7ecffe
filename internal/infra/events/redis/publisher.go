// Package redis streams committed audit entries to a Redis stream so other
// systems (reporting, notifications) can follow project activity.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"navisol/pkg/domain"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "navisol:audit"

// Logger is the subset of the service logger the publisher reports to.
type Logger interface {
	Warn(msg string, args ...any)
}

type discardLogger struct{}

func (discardLogger) Warn(string, ...any) {}

// Options configures a Publisher.
type Options struct {
	Stream string
	// MaxLen caps the stream length with approximate trimming. Zero keeps everything.
	MaxLen int64
	// Timeout bounds each XADD. Defaults to two seconds.
	Timeout time.Duration
	Logger  Logger
}

// Publisher appends audit entries to a Redis stream. It satisfies the
// service's AuditRecorder and is safe for concurrent use.
type Publisher struct {
	rdb     goredis.UniversalClient
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  Logger
}

// NewPublisher connects to Redis using redisOpts.
func NewPublisher(redisOpts *goredis.Options, opts Options) (*Publisher, error) {
	if redisOpts == nil || redisOpts.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	return NewPublisherWithClient(goredis.NewClient(redisOpts), opts), nil
}

// NewPublisherWithClient wraps an existing client.
func NewPublisherWithClient(rdb goredis.UniversalClient, opts Options) *Publisher {
	p := &Publisher{rdb: rdb, stream: opts.Stream, maxLen: opts.MaxLen, timeout: opts.Timeout, logger: opts.Logger}
	if p.stream == "" {
		p.stream = DefaultStream
	}
	if p.timeout <= 0 {
		p.timeout = 2 * time.Second
	}
	if p.logger == nil {
		p.logger = discardLogger{}
	}
	return p
}

// Stream returns the stream key entries are appended to.
func (p *Publisher) Stream() string { return p.stream }

// Ping verifies Redis connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

// Record publishes entry. The audit log in the store is authoritative, so a
// failed publish is logged and dropped rather than returned.
func (p *Publisher) Record(ctx context.Context, entry domain.AuditEntry) {
	if _, err := p.Publish(ctx, entry); err != nil {
		p.logger.Warn("publish audit entry", "stream", p.stream, "entry", entry.ID, "error", err)
	}
}

// Publish appends entry and returns the stream message ID.
func (p *Publisher) Publish(ctx context.Context, entry domain.AuditEntry) (string, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal audit entry: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	args := &goredis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":          entry.ID,
			"sequence":    strconv.FormatInt(entry.Sequence, 10),
			"kind":        string(entry.Kind),
			"entity_type": string(entry.EntityType),
			"entity_id":   entry.EntityID,
			"actor_id":    entry.Actor.ID,
			"actor_role":  string(entry.Actor.Role),
			"timestamp":   entry.Timestamp.UTC().Format(time.RFC3339Nano),
			"entry":       string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}

// Recent reads up to n entries from the stream, newest first.
func (p *Publisher) Recent(ctx context.Context, n int64) ([]domain.AuditEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := p.rdb.XRevRangeN(ctx, p.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", p.stream, err)
	}
	out := make([]domain.AuditEntry, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["entry"].(string)
		if !ok {
			return nil, fmt.Errorf("stream message %s has no entry field", msg.ID)
		}
		var entry domain.AuditEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode stream message %s: %w", msg.ID, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
