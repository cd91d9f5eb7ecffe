package httpapi

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorLimiterBucketTableIsBounded(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newActorLimiter(1, 2)
	l.max = 3
	l.now = func() time.Time { return clock }

	for i := range 10 {
		l.bucket(fmt.Sprintf("actor:%d", i))
		clock = clock.Add(100 * time.Millisecond)
	}
	assert.LessOrEqual(t, l.size(), 3, "table never exceeds its cap")
	_, ok := l.buckets["actor:9"]
	assert.True(t, ok, "newest caller is tracked")
	_, ok = l.buckets["actor:0"]
	assert.False(t, ok, "least recently seen caller is evicted")
}

func TestActorLimiterDropsRefilledBuckets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newActorLimiter(1, 2)
	l.max = 2
	l.now = func() time.Time { return clock }

	busy := l.bucket("actor:busy")
	require.True(t, busy.AllowN(clock, 2))
	l.bucket("actor:idle")

	clock = clock.Add(time.Second)
	l.bucket("actor:busy")
	clock = clock.Add(1500 * time.Millisecond)
	l.bucket("actor:new")

	_, idle := l.buckets["actor:idle"]
	assert.False(t, idle, "bucket idle past its refill time is dropped")
	got, ok := l.buckets["actor:busy"]
	require.True(t, ok, "recently seen bucket survives the sweep")
	assert.Same(t, busy, got.lim, "surviving caller keeps its drained bucket")
}
