package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quickoffer/leadgen/pkg/logging"
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

// CounterStore increments the fixed-window counter for key and reports
// the new count plus the time remaining in the window. Implementations
// must be safe for concurrent use and must not lose updates.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// RedisStore counts requests with INCR + EXPIRE so limits hold across
// multiple API processes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr atomically increments the window counter for key.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	// Set expiry only on first increment
	if count == 1 {
		s.client.Expire(ctx, key, window)
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), ttl, nil
}

// MemoryStore is the single-process fallback when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

// NewMemoryStore creates an in-process counter store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{windows: make(map[string]*window)}
	// Periodically evict expired windows to prevent memory growth.
	go s.cleanup()
	return s
}

// Incr increments the window counter for key under the store lock.
func (s *MemoryStore) Incr(_ context.Context, key string, windowDur time.Duration) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowDur)}
		s.windows[key] = w
	}
	w.count++
	return w.count, time.Until(w.resetAt), nil
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for key, w := range s.windows {
			if now.After(w.resetAt) {
				delete(s.windows, key)
			}
		}
		s.mu.Unlock()
	}
}

// Limiter caps requests per client key per window on the public
// submission endpoints.
type Limiter struct {
	store  CounterStore
	max    int
	window time.Duration
	logger *logging.Logger
}

// NewLimiter creates a limiter allowing max requests per window per key.
func NewLimiter(store CounterStore, max int, windowDur time.Duration, logger *logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Limiter{store: store, max: max, window: windowDur, logger: logger}
}

// Check increments the counter for key and reports whether the request
// is within the limit. Counter-store failures fail open: an outage in
// the counter backend must not block lead capture.
func (l *Limiter) Check(ctx context.Context, key string) Result {
	count, ttl, err := l.store.Incr(ctx, "ratelimit:"+key, l.window)
	if err != nil {
		l.logger.Error("rate limit check failed", "error", err, "key", key)
		return Result{Allowed: true, Remaining: l.max}
	}
	if count > l.max {
		l.logger.Warn("rate limit exceeded", "key", key, "count", count, "max", l.max)
		return Result{Allowed: false, RetryAfter: ttl}
	}
	return Result{Allowed: true, Remaining: l.max - count}
}

// ClientKey derives the limiter key for a request: the first
// X-Forwarded-For hop, else the remote address host. Requests with
// neither collapse into a shared "unknown" bucket, and the header is
// spoofable; both are known limitations of header-derived identity.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// RateLimit rejects over-limit requests with 429 before any handler work.
func RateLimit(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Check(r.Context(), ClientKey(r))
			if !res.Allowed {
				retryAfter := int(res.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error":      "Too many requests. Please try again later.",
					"retryAfter": retryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
