package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notify-digest/internal/handler/prometheus"
	"github.com/jwalitptl/notify-digest/internal/middleware"
	"github.com/jwalitptl/notify-digest/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type HealthHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   HealthHandler
	settings Handler
	digest   Handler
	metrics  *prometheus.Handler
}

type RouterConfig struct {
	RateLimit middleware.RateLimiterConfig
	Logger    *logger.Logger
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	health HealthHandler,
	settings Handler,
	digest Handler,
	metrics *prometheus.Handler,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   health,
		settings: settings,
		digest:   digest,
		metrics:  metrics,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(config.Logger),
		middleware.Logger(),
		middleware.ErrorHandler(),
		metrics.Middleware(),
	)

	r.setup(middleware.NewRateLimiter(config.RateLimit))
	return r
}

func (r *Router) setup(limiter *middleware.RateLimiter) {
	r.health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.metrics.Handler())

	// Authenticate first so the limiter can key on the token subject.
	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate(), limiter.RateLimit())
	r.settings.RegisterRoutes(api)

	admin := api.Group("")
	admin.Use(r.auth.RequireAdmin())
	r.digest.RegisterRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
