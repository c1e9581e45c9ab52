package auth

import (
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// LimiterConfig bounds per-actor request throughput at the HTTP layer.
type LimiterConfig struct {
	// RPS is the sustained requests-per-second allowance per actor.
	RPS float64
	// Burst is the instantaneous allowance per actor.
	Burst int
}

// actorLimiters hands out one token bucket per actor id.
type actorLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   LimiterConfig
}

func (a *actorLimiters) get(actorID string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	lim, ok := a.limiters[actorID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(a.config.RPS), a.config.Burst)
		a.limiters[actorID] = lim
	}
	return lim
}

// RateLimitMiddleware enforces per-actor rate limiting. The actor is the
// authenticated principal when present, the remote address otherwise. On
// rate limit exceeded it returns 429 with a Retry-After header.
func RateLimitMiddleware(cfg LimiterConfig) func(http.Handler) http.Handler {
	limiters := &actorLimiters{
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.RPS <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			actorID := r.RemoteAddr
			if principal, err := GetPrincipal(r.Context()); err == nil {
				actorID = principal.GetWorkspaceID() + "/" + principal.GetID()
			}

			if !limiters.get(actorID).Allow() {
				retryAfter := int(1 / cfg.RPS)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeAuthError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
