package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"azebot/internal/service"

	"github.com/gin-gonic/gin"
)

type Services struct {
	Payments   service.PaymentService
	Resolver   service.StatusResolver
	Reconciler service.AccessReconciler
	Catalog    service.CatalogService
}

type RouterConfig struct {
	JWTSecret       string
	AuthRequired    bool
	CreateRateRPS   float64
	CreateRateBurst int
}

// HealthProbe reports whether the service's dependencies are usable.
type HealthProbe func(ctx context.Context) error

func NewRouter(svc Services, cfg RouterConfig, probe HealthProbe, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		if probe != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := probe(ctx); err != nil {
				logger.Warn("health probe failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := Authenticate([]byte(cfg.JWTSecret), cfg.AuthRequired)
	limiter := NewRateLimiter(cfg.CreateRateRPS, cfg.CreateRateBurst)
	NewPaymentHandler(svc, logger).RegisterRoutes(router, auth, limiter.Middleware())
	return router
}
