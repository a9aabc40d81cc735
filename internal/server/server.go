package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hostfolio/hostfolio/internal/billing"
	billingdomain "github.com/hostfolio/hostfolio/internal/billing/domain"
	"github.com/hostfolio/hostfolio/internal/clock"
	"github.com/hostfolio/hostfolio/internal/config"
	"github.com/hostfolio/hostfolio/internal/migration"
	"github.com/hostfolio/hostfolio/internal/observability"
	obsmiddleware "github.com/hostfolio/hostfolio/internal/observability/logger"
	obstracing "github.com/hostfolio/hostfolio/internal/observability/tracing"
	"github.com/hostfolio/hostfolio/internal/organization"
	providerbilling "github.com/hostfolio/hostfolio/internal/providers/billing"
	"github.com/hostfolio/hostfolio/internal/providers/email"
	"github.com/hostfolio/hostfolio/internal/subscription"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	migration.Module,
	fx.Provide(registerGin),
	email.Module,
	providerbilling.Module,
	organization.Module,
	subscription.Module,
	billing.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	ingestSvc billingdomain.Ingest
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	IngestSvc billingdomain.Ingest
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Gin,
		ingestSvc: p.IngestSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/billing/:provider", s.HandleBillingWebhook)
}
