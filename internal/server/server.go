package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/numberpool/internal/config"
	"github.com/smallbiznis/numberpool/internal/cooloff"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	numberhistorydomain "github.com/smallbiznis/numberpool/internal/numberhistory/domain"
	obslogger "github.com/smallbiznis/numberpool/internal/observability/logger"
	obstracing "github.com/smallbiznis/numberpool/internal/observability/tracing"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(ActorContext())
	r.Use(ErrorHandlingMiddleware())
	return r
}

type Params struct {
	fx.In

	Engine    *gin.Engine
	Config    config.Config
	DB        *gorm.DB
	Log       *zap.Logger
	Numbers   phonenumberdomain.Service
	History   numberhistorydomain.Service
	Lifecycle lifecycledomain.Service
	Sweeper   *cooloff.Sweeper `optional:"true"`
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	numberSvc    phonenumberdomain.Service
	historySvc   numberhistorydomain.Service
	lifecycleSvc lifecycledomain.Service
	sweeper      *cooloff.Sweeper
}

func NewServer(p Params) *Server {
	return &Server{
		engine:       p.Engine,
		cfg:          p.Config,
		db:           p.DB,
		log:          p.Log.Named("http"),
		numberSvc:    p.Numbers,
		historySvc:   p.History,
		lifecycleSvc: p.Lifecycle,
		sweeper:      p.Sweeper,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", s.Health)
	s.engine.GET("/readyz", s.Ready)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	numbers := v1.Group("/numbers")
	numbers.GET("", s.ListNumbers)
	numbers.POST("", s.ProvisionNumber)
	numbers.GET("/lookup", s.LookupNumber)
	numbers.GET("/:id", s.GetNumber)
	numbers.PATCH("/:id", s.UpdateNumber)
	numbers.GET("/:id/history", s.ListNumberHistory)
	numbers.POST("/:id/assign", s.AssignNumber)
	numbers.POST("/:id/unassign", s.UnassignNumber)
	numbers.POST("/:id/publish", s.PublishNumber)
	numbers.POST("/:id/unpublish", s.UnpublishNumber)

	if s.sweeper != nil {
		v1.POST("/sweeps", s.RunSweep)
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.log.Warn("readiness check failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
