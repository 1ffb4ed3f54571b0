package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/dmitrijs2005/gophbucket/internal/logging"
	"github.com/dmitrijs2005/gophbucket/internal/server/accesscheck"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// RequestIDHeader is echoed back on every response.
	RequestIDHeader = "X-Request-ID"
	publicIDKey     = "public_id"
)

func message(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

// requestLogger assigns a request id, puts it on the request context for
// downstream log lines and logs one line per request.
func requestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))

		started := time.Now()
		c.Next()

		log.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(started).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// recovery turns a handler panic into a JSON 500.
func recovery(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(c.Request.Context(), "panic recovered", "panic", r, "path", c.Request.URL.Path)
				message(c, http.StatusInternalServerError, "Internal server error")
			}
		}()
		c.Next()
	}
}

// jsonOnly rejects requests whose body is not declared as JSON.
func jsonOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ct := c.ContentType()
		if ct != gin.MIMEJSON && !strings.HasSuffix(ct, "+json") {
			message(c, http.StatusBadRequest, "Input must be json")
			return
		}
		c.Next()
	}
}

// requireAccessLevel resolves the caller through the access check and stores
// their public id on the context.
func requireAccessLevel(checker accesscheck.Checker, level int, log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(common.AccessTokenHeaderName)
		if token == "" {
			message(c, http.StatusUnauthorized, "Missing access token")
			return
		}
		publicID, err := checker.Check(c.Request.Context(), token, level)
		if err != nil {
			log.Warn(c.Request.Context(), "access denied", "level", level, "error", err.Error())
			message(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Set(publicIDKey, publicID)
		c.Next()
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(publicIDKey)
}

// ipLimiter is a token bucket per client address.
type ipLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	maxItems int
}

// newIPLimiter allows n requests per period per client, bursting up to n.
func newIPLimiter(n int, period time.Duration) *ipLimiter {
	if n <= 0 {
		return nil
	}
	return &ipLimiter{
		limit:    rate.Every(period / time.Duration(n)),
		burst:    n,
		buckets:  make(map[string]*rate.Limiter),
		maxItems: 10000,
	}
}

func (l *ipLimiter) allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxItems {
			// Reset rather than evict one by one.
			l.buckets = make(map[string]*rate.Limiter)
		}
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// rateLimit answers 429 once a client exhausts its bucket. A nil limiter
// disables limiting.
func rateLimit(l *ipLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l != nil && !l.allow(c.ClientIP()) {
			message(c, http.StatusTooManyRequests, "Too many requests")
			return
		}
		c.Next()
	}
}
