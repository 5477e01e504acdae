package http

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	slowRequestThreshold = 500 * time.Millisecond
	rateLimitCacheSize   = 10_000
)

func Zerolog(log zerolog.Logger, level zerolog.Level) gin.HandlerFunc {
	logFunc := log.Info
	if level == zerolog.DebugLevel {
		logFunc = log.Debug
	}

	return func(c *gin.Context) {
		start := time.Now()

		// process request
		c.Next()

		latency := time.Since(start)

		if latency > slowRequestThreshold {
			logRequest(log.Warn(), c, latency).Msg("SLOW HTTP request")
			return
		}

		logRequest(logFunc(), c, latency).Msg("HTTP request")
	}
}

func logRequest(e *zerolog.Event, c *gin.Context, latency time.Duration) *zerolog.Event {
	return e.
		Str("http.client_ip", c.ClientIP()).
		Str("http.method", c.Request.Method).
		Str("http.path", c.Request.URL.Path).
		Int("http.status", c.Writer.Status()).
		Dur("http.latency", latency).
		Str("http.ua", c.Request.UserAgent())
}

// CORS. Allowed origins should be comma separated. Empty string is treated as `*` wildcard.
func CORS(allowedOrigins string) gin.HandlerFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}

	config := cors.DefaultConfig()
	config.AllowOrigins = strings.Split(allowedOrigins, ",")
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}

	return cors.New(config)
}

// RateLimit applies a token bucket per client IP. Limiters live in a bounded LRU so that
// a flood of distinct addresses cannot grow memory without limit.
func RateLimit(rps float64, burst int, log zerolog.Logger) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters, err := lru.New(rateLimitCacheSize)
	if err != nil {
		// only fails on a non-positive size
		panic(err)
	}

	var mu sync.Mutex

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		if v, ok := limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}

		limiter := rate.NewLimiter(rate.Limit(rps), burst)
		limiters.Add(ip, limiter)

		return limiter
	}

	return func(c *gin.Context) {
		if limiterFor(c.ClientIP()).Allow() {
			c.Next()
			return
		}

		log.Debug().
			Str("http.client_ip", c.ClientIP()).
			Str("http.path", c.Request.URL.Path).
			Msg("HTTP request rate limited")

		Err(c, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
	}
}
