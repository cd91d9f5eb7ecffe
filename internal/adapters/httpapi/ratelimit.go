package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"navisol/pkg/domain"
)

// maxLimiterBuckets caps the number of tracked callers.
const maxLimiterBuckets = 4096

// actorLimiter hands out one token bucket per caller. Callers without an
// actor header share a bucket per client IP. Buckets idle long enough to
// have refilled are dropped once the table reaches its cap.
type actorLimiter struct {
	limit rate.Limit
	burst int
	max   int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucketEntry
}

type bucketEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newActorLimiter(limit rate.Limit, burst int) *actorLimiter {
	if burst < 1 {
		burst = 1
	}
	return &actorLimiter{limit: limit, burst: burst, max: maxLimiterBuckets, now: time.Now, buckets: map[string]*bucketEntry{}}
}

// refill is how long an untouched bucket takes to become full again.
func (l *actorLimiter) refill() time.Duration {
	if l.limit <= 0 || l.limit == rate.Inf {
		return 0
	}
	return time.Duration(float64(l.burst) / float64(l.limit) * float64(time.Second))
}

func (l *actorLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.buckets[key]; ok {
		e.seen = now
		return e.lim
	}
	if len(l.buckets) >= l.max {
		l.sweep(now)
	}
	e := &bucketEntry{lim: rate.NewLimiter(l.limit, l.burst), seen: now}
	l.buckets[key] = e
	return e.lim
}

// sweep drops refilled buckets, then the least recently seen one if the
// table is still full. Callers hold mu.
func (l *actorLimiter) sweep(now time.Time) {
	idle := l.refill()
	var oldestKey string
	var oldest time.Time
	for k, e := range l.buckets {
		if now.Sub(e.seen) >= idle {
			delete(l.buckets, k)
			continue
		}
		if oldestKey == "" || e.seen.Before(oldest) {
			oldestKey, oldest = k, e.seen
		}
	}
	if len(l.buckets) >= l.max && oldestKey != "" {
		delete(l.buckets, oldestKey)
	}
}

func (l *actorLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// middleware rejects requests over the caller's budget with 429. It must run
// after readActor.
func (l *actorLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if v, ok := c.Get(actorKey); ok {
			key = "actor:" + v.(domain.Actor).ID
		}
		r := l.bucket(key).Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			c.Header("Retry-After", strconv.Itoa(int((delay+time.Second-1)/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: errorDetail{
				Kind:    "RateLimited",
				Message: "too many requests",
			}})
			return
		}
		c.Next()
	}
}
