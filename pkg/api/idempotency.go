package api

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/weftlabs/substrate/pkg/auth"
)

// replayRecord is a cached mutating response eligible for idempotent replay.
type replayRecord struct {
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

// ReplayCache stores responses for idempotent replay.
type ReplayCache interface {
	Get(key string) (*replayRecord, bool)
	Put(key string, status int, header http.Header, body []byte)
}

// MemoryReplayCache is an in-process ReplayCache with TTL expiry.
type MemoryReplayCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	byKey map[string]*replayRecord
}

func NewReplayCache(ttl time.Duration) *MemoryReplayCache {
	c := &MemoryReplayCache{ttl: ttl, byKey: make(map[string]*replayRecord)}
	go c.sweep()
	return c
}

func (c *MemoryReplayCache) sweep() {
	for range time.Tick(5 * time.Minute) {
		now := time.Now()
		c.mu.Lock()
		for k, rec := range c.byKey {
			if now.After(rec.expires) {
				delete(c.byKey, k)
			}
		}
		c.mu.Unlock()
	}
}

func (c *MemoryReplayCache) Get(key string) (*replayRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.byKey[key]
	if !ok || time.Now().After(rec.expires) {
		return nil, false
	}
	return rec, true
}

func (c *MemoryReplayCache) Put(key string, status int, header http.Header, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[key] = &replayRecord{
		status:  status,
		header:  header,
		body:    body,
		expires: time.Now().Add(c.ttl),
	}
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.statusCode = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays cached responses for repeated mutating
// requests carrying the same Idempotency-Key header. The cache key binds the
// client's key to the authenticated principal, method, and path, so a replay
// never crosses workspaces, callers, or endpoints. Approving a proposal twice
// with the same key therefore returns the first approval's response instead
// of a conflict.
func IdempotencyMiddleware(cache ReplayCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := r.Header.Get("Idempotency-Key")
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := auth.GetPrincipal(r.Context())
			if err != nil {
				// Unauthenticated mutations are never cached or replayed.
				next.ServeHTTP(w, r)
				return
			}
			key := strings.Join([]string{
				principal.GetWorkspaceID(), principal.GetID(), r.Method, r.URL.Path, clientKey,
			}, "\x1f")

			if rec, ok := cache.Get(key); ok {
				for name, vals := range rec.header {
					w.Header()[name] = vals
				}
				w.WriteHeader(rec.status)
				_, _ = w.Write(rec.body)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			// Only successful responses are replayable.
			if capture.statusCode >= 200 && capture.statusCode < 300 {
				cache.Put(key, capture.statusCode, w.Header().Clone(), capture.body.Bytes())
			}
		})
	}
}
