package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/playcoin/wallet-service/internal/apperr"
	"github.com/playcoin/wallet-service/internal/fingerprint"
)

const (
	ctxIdempotencyKey = "idempotencyKey"
	ctxFingerprint    = "requestFingerprint"
)

// LoggingMiddleware emits one structured line per request.
func LoggingMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infow("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type limiterPool struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     int
	burst   int
}

func (p *limiterPool) get(ip string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.buckets[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(p.rps), p.burst)
		p.buckets[ip] = lim
	}
	return lim
}

// RateLimitMiddleware applies a per-client-IP token bucket.
func RateLimitMiddleware(rps, burst int) gin.HandlerFunc {
	pool := &limiterPool{buckets: make(map[string]*rate.Limiter), rps: rps, burst: burst}
	return func(c *gin.Context) {
		ip, _, _ := net.SplitHostPort(c.Request.RemoteAddr)
		if !pool.get(ip).Allow() {
			ae := apperr.New(apperr.CodeRateLimited, http.StatusTooManyRequests,
				"too many requests")
			c.AbortWithStatusJSON(ae.HTTPStatus, ae.Envelope())
			return
		}
		c.Next()
	}
}

// IdempotencyMiddleware requires the Idempotency-Key header and stamps
// the request fingerprint into the context. The body is re-buffered so
// handlers can still bind it.
func IdempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			ae := apperr.New(apperr.CodeIdempotencyKeyMissing, http.StatusBadRequest,
				"Idempotency-Key header is required")
			c.AbortWithStatusJSON(ae.HTTPStatus, ae.Envelope())
			return
		}

		raw, err := c.GetRawData()
		if err != nil {
			ae := apperr.Validation("could not read request body")
			c.AbortWithStatusJSON(ae.HTTPStatus, ae.Envelope())
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))

		var body interface{}
		if len(raw) > 0 {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&body); err != nil {
				ae := apperr.Validation("request body is not valid JSON")
				c.AbortWithStatusJSON(ae.HTTPStatus, ae.Envelope())
				return
			}
		}

		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxFingerprint, fingerprint.Compute(c.Request.Method, c.Request.URL.Path, body))
		c.Next()
	}
}

func respondError(c *gin.Context, err error) {
	ae := apperr.From(err)
	c.JSON(ae.HTTPStatus, ae.Envelope())
}
