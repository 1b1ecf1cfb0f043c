package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/playcoin/wallet-service/internal/apperr"
	"github.com/playcoin/wallet-service/internal/config"
	"github.com/playcoin/wallet-service/internal/service"
)

// NewRouter wires middleware, handlers, the health probe and the 404
// fallback.
func NewRouter(svc *service.WalletService, rl config.RateLimitConfig, log *zap.SugaredLogger, healthCheck func(ctx context.Context) error) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svc)

	r.GET("/healthz", func(c *gin.Context) {
		if healthCheck != nil {
			if err := healthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.NoRoute(func(c *gin.Context) {
		ae := apperr.New(apperr.CodeRouteNotFound, http.StatusNotFound, "route not found")
		c.JSON(ae.HTTPStatus, ae.Envelope())
	})
	return r
}
