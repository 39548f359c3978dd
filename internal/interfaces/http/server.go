package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/service"
	"github.com/evalgate/evalgate/internal/infrastructure/eventbus"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence"
	"github.com/evalgate/evalgate/internal/interfaces/http/handlers"
)

// Server wraps the HTTP transport.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config holds the HTTP server settings.
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// NewServer builds the router and wires all handlers.
func NewServer(
	cfg Config,
	store *persistence.Store,
	scheduler *service.Scheduler,
	registry *service.CancelRegistry,
	bus *eventbus.Bus,
	logger *zap.Logger,
) *Server {
	if cfg.Mode == "release" || cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	providerHandler := handlers.NewProviderHandler(store, logger)
	modelHandler := handlers.NewModelHandler(store, logger)
	problemHandler := handlers.NewProblemHandler(store, logger)
	runHandler := handlers.NewRunHandler(store, scheduler, registry, bus, logger)
	eventsHandler := handlers.NewEventsHandler(store, bus, logger)

	setupRoutes(router, providerHandler, modelHandler, problemHandler, runHandler, eventsHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func setupRoutes(
	router *gin.Engine,
	providerHandler *handlers.ProviderHandler,
	modelHandler *handlers.ModelHandler,
	problemHandler *handlers.ProblemHandler,
	runHandler *handlers.RunHandler,
	eventsHandler *handlers.EventsHandler,
) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/providers", providerHandler.Create)
		v1.GET("/providers", providerHandler.List)
		v1.GET("/providers/:id", providerHandler.Get)
		v1.PUT("/providers/:id", providerHandler.Update)
		v1.DELETE("/providers/:id", providerHandler.Delete)
		v1.POST("/providers/:id/test", providerHandler.Test)

		v1.POST("/models", modelHandler.Create)
		v1.GET("/models", modelHandler.List)
		v1.GET("/models/:id", modelHandler.Get)
		v1.PUT("/models/:id", modelHandler.Update)
		v1.DELETE("/models/:id", modelHandler.Delete)

		v1.POST("/problem-sets", problemHandler.CreateSet)
		v1.GET("/problem-sets", problemHandler.ListSets)
		v1.GET("/problem-sets/:id", problemHandler.GetSet)
		v1.DELETE("/problem-sets/:id", problemHandler.DeleteSet)
		v1.POST("/problem-sets/:id/problems", problemHandler.CreateProblem)
		v1.GET("/problem-sets/:id/problems", problemHandler.ListProblems)
		v1.DELETE("/problems/:id", problemHandler.DeleteProblem)

		v1.POST("/runs", runHandler.Create)
		v1.GET("/runs", runHandler.List)
		v1.GET("/runs/:id", runHandler.Get)
		v1.POST("/runs/:id/execute", runHandler.Execute)
		v1.POST("/runs/:id/cancel", runHandler.CancelRun)
		v1.POST("/runs/:id/models/:model_id/cancel", runHandler.CancelModel)
		v1.GET("/runs/:id/results", runHandler.Results)
		v1.GET("/runs/:id/events", eventsHandler.Subscribe)

		v1.POST("/results/:id/review", runHandler.Review)
	}
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
