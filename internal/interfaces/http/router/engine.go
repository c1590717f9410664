package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/infrastructure/logger"
	"github.com/erp/manufacture/internal/interfaces/http/handler"
	"github.com/erp/manufacture/internal/interfaces/http/middleware"
)

// EngineConfig configures the middleware chain
type EngineConfig struct {
	ServiceName    string
	TrustedProxies []string
	Tracing        bool
	TracerProvider trace.TracerProvider
	// RateLimiter guards /api; nil disables limiting
	RateLimiter *middleware.RateLimiter
}

// Handlers are the handlers served by the engine. Nil handlers leave their routes out.
type Handlers struct {
	System        *handler.SystemHandler
	Replenishment *handler.ReplenishmentHandler
	Accounts      *handler.AccountHandler
	Jobs          *handler.JobHandler
	Batches       *handler.BatchHandler
}

// NewEngine builds the gin engine:
//
//	GET  /health
//	GET  /ready
//	GET  /api/v1/system/info
//	GET  /api/v1/accounts
//	PUT  /api/v1/accounts/:account/enabled
//	GET  /api/v1/accounts/:account/replenishment
//	GET  /api/v1/jobs
//	POST /api/v1/jobs
//	POST /api/v1/batches/:id/complete
func NewEngine(cfg EngineConfig, h Handlers, log *zap.Logger) (*gin.Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName:    cfg.ServiceName,
			Enabled:        cfg.Tracing,
			TracerProvider: cfg.TracerProvider,
		}),
		middleware.SpanAttributes(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
	)

	if h.System != nil {
		engine.GET("/health", h.System.Health)
		engine.GET("/ready", h.System.Ready)
	}

	r := NewRouter(engine)

	if h.System != nil {
		r.Register(NewDomainGroup("system", "/system").GET("/info", h.System.Info))
	}

	accounts := NewDomainGroup("accounts", "/accounts")
	if h.Accounts != nil {
		accounts.GET("", h.Accounts.List).PUT("/:account/enabled", h.Accounts.SetEnabled)
	}
	if h.Replenishment != nil {
		accounts.GET("/:account/replenishment", h.Replenishment.Rank)
	}

	jobs := NewDomainGroup("jobs", "/jobs")
	if h.Jobs != nil {
		jobs.GET("", h.Jobs.History).POST("", h.Jobs.Trigger)
	}

	batches := NewDomainGroup("batches", "/batches")
	if h.Batches != nil {
		batches.POST("/:id/complete", h.Batches.Complete)
	}

	if cfg.RateLimiter != nil {
		accounts.Use(middleware.RateLimit(cfg.RateLimiter))
		jobs.Use(middleware.RateLimit(cfg.RateLimiter))
	}
	r.Register(accounts).Register(jobs).Register(batches)
	r.Setup()

	return engine, nil
}
