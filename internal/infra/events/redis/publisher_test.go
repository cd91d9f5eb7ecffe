package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navisol/pkg/domain"
)

func setupPublisher(t *testing.T, opts Options) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	p, err := NewPublisher(&goredis.Options{Addr: mr.Addr()}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, mr
}

func sampleEntry(seq int64) domain.AuditEntry {
	return domain.AuditEntry{
		ID:          fmt.Sprintf("audit-%d", seq),
		Sequence:    seq,
		Kind:        domain.AuditStatusTransition,
		EntityType:  domain.EntityProject,
		EntityID:    "project-1",
		Description: "DRAFT -> QUOTED",
		Actor:       domain.AuditActor{ID: "u-sales", Role: domain.RoleSales},
		Timestamp:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestNewPublisher(t *testing.T) {
	t.Run("defaults stream", func(t *testing.T) {
		p, _ := setupPublisher(t, Options{})
		assert.Equal(t, DefaultStream, p.Stream())
		assert.NoError(t, p.Ping(context.Background()))
	})

	t.Run("rejects empty address", func(t *testing.T) {
		_, err := NewPublisher(&goredis.Options{}, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "address cannot be empty")
	})
}

func TestPublishWritesStreamFields(t *testing.T) {
	p, mr := setupPublisher(t, Options{Stream: "yard:audit"})
	ctx := context.Background()

	id, err := p.Publish(ctx, sampleEntry(7))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	stream, err := mr.Stream("yard:audit")
	require.NoError(t, err)
	require.Len(t, stream, 1)
	values := map[string]string{}
	for i := 0; i+1 < len(stream[0].Values); i += 2 {
		values[stream[0].Values[i]] = stream[0].Values[i+1]
	}
	assert.Equal(t, "audit-7", values["id"])
	assert.Equal(t, "7", values["sequence"])
	assert.Equal(t, "STATUS_TRANSITION", values["kind"])
	assert.Equal(t, "u-sales", values["actor_id"])
	assert.Equal(t, string(domain.RoleSales), values["actor_role"])
	assert.Contains(t, values["entry"], `"entity_id":"project-1"`)
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	p, _ := setupPublisher(t, Options{})
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		p.Record(ctx, sampleEntry(i))
	}

	entries, err := p.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].Sequence)
	assert.Equal(t, int64(2), entries[1].Sequence)

	none, err := p.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordLogsWhenRedisIsDown(t *testing.T) {
	logger := &recordingLogger{}
	p, mr := setupPublisher(t, Options{Logger: logger, Timeout: 200 * time.Millisecond})
	mr.Close()

	p.Record(context.Background(), sampleEntry(1))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Equal(t, []string{"publish audit entry"}, logger.warns)
}

func TestRecordSurvivesCancelledContext(t *testing.T) {
	p, mr := setupPublisher(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.Record(ctx, sampleEntry(1))

	stream, err := mr.Stream(DefaultStream)
	require.NoError(t, err)
	assert.Len(t, stream, 1)
}

func TestRecentRejectsForeignMessages(t *testing.T) {
	p, mr := setupPublisher(t, Options{})
	_, err := mr.XAdd(DefaultStream, "*", []string{"other", "value"})
	require.NoError(t, err)

	_, err = p.Recent(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entry field")
}
