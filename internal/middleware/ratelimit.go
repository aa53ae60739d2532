package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/noteimport/internal/pkg/errcode"
	"github.com/xxxsen/noteimport/internal/pkg/response"
)

// entries older than this many windows are dropped on the next sweep
const sweepFactor = 4

type rateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	last      map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// RateLimit allows one request per window for every ip|owner|route key.
// A zero window disables the limiter.
func RateLimit(window time.Duration) gin.HandlerFunc {
	return newRateLimiter(window, time.Now).handle
}

func newRateLimiter(window time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		window: window,
		last:   make(map[string]time.Time),
		now:    now,
	}
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	uid := "0"
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			uid = id
		}
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, uid, path}, "|")
	if !l.allow(key) {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("user_id", uid),
			zap.String("path", path),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	c.Next()
}

func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)
	if last, ok := l.last[key]; ok && now.Sub(last) < l.window {
		return false
	}
	l.last[key] = now
	return true
}

func (l *rateLimiter) sweepLocked(now time.Time) {
	ttl := l.window * sweepFactor
	if now.Sub(l.lastSweep) < ttl {
		return
	}
	for key, last := range l.last {
		if now.Sub(last) >= ttl {
			delete(l.last, key)
		}
	}
	l.lastSweep = now
}
