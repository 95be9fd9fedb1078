package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/config"
	"github.com/jmehdipour/activitylog-webhook/internal/http/middleware"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the services behind the API. Gatherer defaults to the
// prometheus default registry.
type Deps struct {
	Subscriptions SubscriptionService
	Activity      Recorder
	Redis         *redis.Client
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
}

type Server struct {
	e      *echo.Echo
	logger *zap.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.APIKeys)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          deps.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:scope:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.GET("/topics", listTopicsHandler())
	v1.POST("/activity", recordActivityHandler(deps.Activity))

	subs := v1.Group("/subscriptions")
	subs.GET("", listSubscriptionsHandler(deps.Subscriptions))
	subs.POST("", createSubscriptionHandler(deps.Subscriptions))
	subs.GET("/:uuid", getSubscriptionHandler(deps.Subscriptions))
	subs.PATCH("/:uuid", updateSubscriptionHandler(deps.Subscriptions))
	subs.DELETE("/:uuid", deleteSubscriptionHandler(deps.Subscriptions))
	subs.GET("/:uuid/secrets", listSecretsHandler(deps.Subscriptions))
	subs.POST("/:uuid/secrets", addSecretHandler(deps.Subscriptions))
	subs.DELETE("/:uuid/secrets/:id", deleteSecretHandler(deps.Subscriptions))
	subs.GET("/:uuid/deliveries", listDeliveriesHandler(deps.Subscriptions))

	v1.GET("/deliveries", findDeliveriesHandler(deps.Subscriptions))

	return &Server{e: e, logger: deps.Logger}
}

func echoLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func (s *Server) Start(addr string) error {
	s.logger.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
