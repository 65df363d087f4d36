package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware keeps one token bucket per client.
type RateLimiterMiddleware struct {
	clients    map[string]*clientLimiter
	mu         sync.Mutex
	refillRate rate.Limit
	bucketSize int
	idleTTL    time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiterMiddleware creates the middleware and starts removing clients
// idle for longer than 30 minutes. Call Close to stop that loop.
func NewRateLimiterMiddleware(bucketSize, refillRate int) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients:    make(map[string]*clientLimiter),
		refillRate: rate.Limit(refillRate),
		bucketSize: bucketSize,
		idleTTL:    30 * time.Minute,
		stop:       make(chan struct{}),
	}
	go rm.cleanupLoop(10 * time.Minute)
	return rm
}

func (rm *RateLimiterMiddleware) Close() {
	rm.stopOnce.Do(func() { close(rm.stop) })
}

// clientKey is the user id when authenticated, the client IP otherwise.
func clientKey(c *gin.Context) string {
	if id := c.GetString(ContextKeyUserID); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

func (rm *RateLimiterMiddleware) limiterFor(key string) *rate.Limiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	cl, ok := rm.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rm.refillRate, rm.bucketSize)}
		rm.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

func (rm *RateLimiterMiddleware) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case <-ticker.C:
			if n := rm.evictIdle(time.Now()); n > 0 {
				log.Debugf("Rate limiter removed %d idle clients", n)
			}
		}
	}
}

func (rm *RateLimiterMiddleware) evictIdle(now time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	n := 0
	for key, cl := range rm.clients {
		if now.Sub(cl.lastSeen) > rm.idleTTL {
			delete(rm.clients, key)
			n++
		}
	}
	return n
}

// Limit rejects requests beyond the client's bucket with 429.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		if !rm.limiterFor(key).Allow() {
			log.Warnf("Rate limit exceeded for %s on %s %s", key, c.Request.Method, c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Demasiadas solicitudes, intente más tarde"})
			return
		}
		c.Next()
	}
}
