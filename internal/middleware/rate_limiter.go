package middleware

import (
	"net/http"
	"sync"
	"time"

	"agrotic/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// rateEntry tracks request counts per client IP within a fixed window.
type rateEntry struct {
	count     int
	windowEnd time.Time
}

type rateLimiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	entries map[string]*rateEntry
	now     func() time.Time
}

const purgeInterval = 5 * time.Minute

// RateLimiter returns a per-IP window limiter. Each call owns its own table,
// purged in the background of expired IPs.
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	rl := &rateLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*rateEntry),
		now:     time.Now,
	}
	go rl.purgeLoop()
	return rl.handle
}

func (rl *rateLimiter) handle(c *gin.Context) {
	ok, retryAt := rl.allow(c.ClientIP())
	if !ok {
		c.Header("Retry-After", retryAt.UTC().Format(http.TimeFormat))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("Demasiadas solicitudes. Intente nuevamente en un momento."))
		return
	}
	c.Next()
}

func (rl *rateLimiter) allow(ip string) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[ip]
	if !ok || now.After(e.windowEnd) {
		e = &rateEntry{windowEnd: now.Add(rl.window)}
		rl.entries[ip] = e
	}
	e.count++
	return e.count <= rl.limit, e.windowEnd
}

func (rl *rateLimiter) purgeLoop() {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for range ticker.C {
		if n := rl.purge(); n > 0 {
			log.Debug().Int("entries_purged", n).Msg("rate limiter purged")
		}
	}
}

func (rl *rateLimiter) purge() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	purged := 0
	for ip, e := range rl.entries {
		if now.After(e.windowEnd) {
			delete(rl.entries, ip)
			purged++
		}
	}
	return purged
}
