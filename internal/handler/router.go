package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/qldb/internal/audit"
	"github.com/jmerrifield20/qldb/internal/config"
	"go.uber.org/zap"
)

// IntegrityReporter exposes the latest background audit.
type IntegrityReporter interface {
	Last() (audit.Status, bool)
}

// RouterOption customises NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	integrity IntegrityReporter
}

// WithIntegrityReporter adds the latest audit result to GET /healthz.
func WithIntegrityReporter(r IntegrityReporter) RouterOption {
	return func(o *routerOptions) { o.integrity = r }
}

// NewRouter builds the HTTP API for svc. ctx bounds background work owned by
// the router, such as rate-limiter sweeps.
func NewRouter(ctx context.Context, svc ledgerSvc, cfg config.ServerConfig, logger *zap.Logger, opts ...RouterOption) *gin.Engine {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
			AllowCredentials: !containsWildcard(cfg.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}
	router.Use(SecurityHeaders())
	router.Use(BodyLimit(maxBodyBytes))
	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitRPS*2))
	}
	router.Use(PrometheusMiddleware())
	router.Use(RequestLogger(logger))

	router.GET("/healthz", healthz(o.integrity))
	router.GET("/metrics", MetricsHandler())

	v1 := router.Group("/api/v1")

	ledgerHandler := NewLedgerHandler(svc, logger)
	if cfg.AdminSecret != "" {
		tokens := NewAdminTokens(cfg.AdminSecret, time.Hour)
		ledgerHandler.SetAdminTokens(tokens)
		NewAuthHandler(tokens, logger).Register(v1)
	} else {
		logger.Warn("server.admin_secret is empty; write routes are unauthenticated")
	}
	ledgerHandler.Register(v1)

	return router
}

// healthz always answers 200 while the process serves requests; a failed
// audit is reported in the body as status "compromised".
func healthz(integrity IntegrityReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"status": "ok"}
		if integrity != nil {
			if st, ok := integrity.Last(); ok {
				resp["ledger"] = st
				if !st.Healthy {
					resp["status"] = "compromised"
				}
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
