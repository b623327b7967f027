package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/learnova/learnova-backend/pkg/clientip"
)

// Snapshot endpoint rate limit: per-IP, different limits for auth vs
// anonymous. Auth: 30 req/min, burst 20. Anonymous: 10 req/min, burst 5.
// Prevents 429s from rapid conversation switching while blocking abuse.

const (
	chatSnapshotAuthRPS    = 0.5 // 30/min
	chatSnapshotAuthBurst  = 20
	chatSnapshotAnonRPS    = 0.17 // ~10/min
	chatSnapshotAnonBurst  = 5
	chatSnapshotCleanupMin = 5 * time.Minute
	chatSnapshotLimiterTTL = 30 * time.Minute
)

type chatLimiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

var (
	chatSnapshotEntries   = make(map[string]*chatLimiterEntry)
	chatSnapshotEntriesMu sync.Mutex
	chatSnapshotCleanup   bool
)

func getChatSnapshotLimiter(ip string, authenticated bool) *rate.Limiter {
	var key string
	if authenticated {
		key = "auth:" + ip
	} else {
		key = "anon:" + ip
	}

	chatSnapshotEntriesMu.Lock()
	defer chatSnapshotEntriesMu.Unlock()
	startChatSnapshotCleanupOnce()

	e, ok := chatSnapshotEntries[key]
	if !ok {
		if authenticated {
			e = &chatLimiterEntry{
				limiter: rate.NewLimiter(rate.Limit(chatSnapshotAuthRPS), chatSnapshotAuthBurst),
				lastUse: time.Now(),
			}
		} else {
			e = &chatLimiterEntry{
				limiter: rate.NewLimiter(rate.Limit(chatSnapshotAnonRPS), chatSnapshotAnonBurst),
				lastUse: time.Now(),
			}
		}
		chatSnapshotEntries[key] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func startChatSnapshotCleanupOnce() {
	if chatSnapshotCleanup {
		return
	}
	chatSnapshotCleanup = true
	go func() {
		ticker := time.NewTicker(chatSnapshotCleanupMin)
		defer ticker.Stop()
		for range ticker.C {
			chatSnapshotEntriesMu.Lock()
			now := time.Now()
			for k, e := range chatSnapshotEntries {
				if now.Sub(e.lastUse) > chatSnapshotLimiterTTL {
					delete(chatSnapshotEntries, k)
				}
			}
			chatSnapshotEntriesMu.Unlock()
		}
	}()
}

// chatSnapshotIsAuthenticated checks for a Bearer token in the Authorization header.
func chatSnapshotIsAuthenticated(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && len(strings.TrimPrefix(auth, "Bearer ")) > 0
}

// ChatSnapshotRateLimit applies rate limiting to GET /api/chat/* snapshot
// endpoints. Auth: 30/min burst 20. Anonymous: 10/min burst 5. Returns 429
// with headers when exceeded.
func ChatSnapshotRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/api/chat/") {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientip.RealClientIP(r)
		auth := chatSnapshotIsAuthenticated(r)
		limiter := getChatSnapshotLimiter(ip, auth)

		limit := chatSnapshotAnonBurst
		if auth {
			limit = chatSnapshotAuthBurst
		}

		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Too many chat requests. Please slow down."}`))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-1)) // Best-effort for debugging
		next.ServeHTTP(w, r)
	})
}
