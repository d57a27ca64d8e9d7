package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notification-ledger/internal/config"
	"github.com/jwalitptl/notification-ledger/internal/handler/health"
	metricsHandler "github.com/jwalitptl/notification-ledger/internal/handler/prometheus"
	"github.com/jwalitptl/notification-ledger/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	health        *health.Handler
	metrics       *metricsHandler.Handler
	notifications Handler
	watchers      Handler
}

type RouterConfig struct {
	Server    config.ServerConfig
	RateLimit config.RateLimitConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	metrics *metricsHandler.Handler,
	notificationH Handler,
	watcherH Handler,
	cfg RouterConfig,
) *Router {
	engine := gin.New()
	middleware.UseJSONFieldNames()

	r := &Router{
		engine:        engine,
		auth:          auth,
		health:        healthH,
		metrics:       metrics,
		notifications: notificationH,
		watchers:      watcherH,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		metrics.Middleware(),
	)
	if cfg.Server.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPS:   cfg.RateLimit.RequestsPerSecond,
			Burst: cfg.RateLimit.Burst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.notifications.RegisterRoutes(protected)
	r.watchers.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
