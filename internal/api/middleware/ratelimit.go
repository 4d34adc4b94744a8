package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier    int     = 2
	defaultMaxClients          int     = 1000
	defaultGlobalRPS           int     = 50
	defaultClientRPS           int     = 5
	thresholdMultiplier        float64 = 0.8
	rateLimiterCleanupInterval         = 5 * time.Minute
	rateLimiterIdleTimeout             = 1 * time.Hour
)

type (
	// RateLimiter decides whether a request from a client may proceed.
	RateLimiter interface {
		Allow(clientID string) bool
	}

	// InMemoryRateLimiter implements RateLimiter with token buckets from golang.org/x/time/rate.
	//
	// Every request draws from the global bucket and from its client's bucket. Clients
	// beyond MaxClients share one overflow bucket. Idle client buckets are dropped by a
	// background cleanup loop.
	InMemoryRateLimiter struct {
		global   *rate.Limiter
		overflow *rate.Limiter
		clients  map[string]*clientLimiter
		mu       sync.Mutex
		ticker   *time.Ticker
		done     chan struct{}
		once     sync.Once

		clientRPS   int
		clientBurst int
		idleTimeout time.Duration
		maxClients  int
		warned      bool
	}

	clientLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
	}
)

// NewInMemoryRateLimiter creates a limiter and starts its cleanup loop. Call Close to stop it.
func NewInMemoryRateLimiter(cfg *Config) *InMemoryRateLimiter {
	clientBurst := computeBurstCapacity(cfg.ClientRPS, cfg.ClientBurst)

	maxClients := cfg.MaxClients
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}

	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = rateLimiterIdleTimeout
	}

	rl := &InMemoryRateLimiter{
		global:      rate.NewLimiter(rate.Limit(cfg.GlobalRPS), computeBurstCapacity(cfg.GlobalRPS, cfg.GlobalBurst)),
		overflow:    rate.NewLimiter(rate.Limit(cfg.ClientRPS), clientBurst),
		clients:     make(map[string]*clientLimiter),
		done:        make(chan struct{}),
		clientRPS:   cfg.ClientRPS,
		clientBurst: clientBurst,
		idleTimeout: idleTimeout,
		maxClients:  maxClients,
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = rateLimiterCleanupInterval
	}

	rl.startCleanup(cleanupInterval)

	return rl
}

// computeBurstCapacity returns burstOverride when set, otherwise 2 × rate.
func computeBurstCapacity(rate, burstOverride int) int {
	if burstOverride > 0 {
		return burstOverride
	}

	return rate * burstCapacityMultiplier
}

// Allow checks the global bucket first, then the client's own bucket.
func (rl *InMemoryRateLimiter) Allow(clientID string) bool {
	if !rl.global.Allow() {
		return false
	}

	return rl.limiterFor(clientID).Allow()
}

// ClientCount returns the number of tracked client buckets.
func (rl *InMemoryRateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.clients)
}

func (rl *InMemoryRateLimiter) limiterFor(clientID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok := rl.clients[clientID]; ok {
		cl.lastAccess = time.Now()

		return cl.limiter
	}

	if len(rl.clients) >= rl.maxClients {
		return rl.overflow
	}

	rl.clients[clientID] = &clientLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.clientRPS), rl.clientBurst),
		lastAccess: time.Now(),
	}

	if count := len(rl.clients); !rl.warned && count >= int(float64(rl.maxClients)*thresholdMultiplier) {
		rl.warned = true

		slog.Warn("Rate limiter approaching max clients limit",
			slog.Int("current_clients", count),
			slog.Int("max_clients", rl.maxClients))
	}

	return rl.clients[clientID].limiter
}

// Close stops the cleanup loop. It is safe to call more than once.
func (rl *InMemoryRateLimiter) Close() error {
	rl.once.Do(func() {
		rl.ticker.Stop()
		close(rl.done)
	})

	return nil
}

func (rl *InMemoryRateLimiter) startCleanup(interval time.Duration) {
	rl.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-rl.ticker.C:
				rl.cleanup(time.Now())
			case <-rl.done:
				return
			}
		}
	}()
}

// cleanup drops client buckets idle for longer than the idle timeout.
func (rl *InMemoryRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for id, cl := range rl.clients {
		if now.Sub(cl.lastAccess) > rl.idleTimeout {
			delete(rl.clients, id)
		}
	}

	if len(rl.clients) < int(float64(rl.maxClients)*thresholdMultiplier) {
		rl.warned = false
	}
}

// RateLimit returns a middleware that answers 429 with an RFC 7807 body once a
// client exceeds its rate. Clients are keyed by remote IP.
func RateLimit(limiter RateLimiter, logger *slog.Logger, exempt ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(exempt))
	for _, path := range exempt {
		skip[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)

				return
			}

			if limiter.Allow(clientID(r)) {
				next.ServeHTTP(w, r)

				return
			}

			w.Header().Set("Retry-After", "1")

			detail := "Rate limit exceeded. Please retry after some time."
			if err := writeProblem(w, r, http.StatusTooManyRequests, detail); err != nil {
				logger.Error("Failed to write rate limit response",
					slog.String("correlation_id", GetCorrelationID(r.Context())),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
			}
		})
	}
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
