package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/service"
	"github.com/evalgate/evalgate/internal/infrastructure/config"
	"github.com/evalgate/evalgate/internal/infrastructure/eventbus"
	"github.com/evalgate/evalgate/internal/infrastructure/llm"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence"
	httpiface "github.com/evalgate/evalgate/internal/interfaces/http"

	// Protocol clients register their factories on import.
	_ "github.com/evalgate/evalgate/internal/infrastructure/llm/anthropic"
	_ "github.com/evalgate/evalgate/internal/infrastructure/llm/gemini"
	_ "github.com/evalgate/evalgate/internal/infrastructure/llm/openai"
)

// App owns the object graph: store, event bus, cancel registry, scheduler,
// and the HTTP control plane.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store     *persistence.Store
	bus       *eventbus.Bus
	registry  *service.CancelRegistry
	scheduler *service.Scheduler
	server    *httpiface.Server
}

// NewApp opens the store, runs migrations, and wires every component.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := persistence.NewDBConnection(&cfg.Database)
	if err != nil {
		return nil, err
	}
	store := persistence.NewStore(db)

	bus := eventbus.NewBus(logger, cfg.Engine.EventBufferSize)
	registry := service.NewCancelRegistry(logger)
	invoker := llm.NewInvoker(logger)

	retry := service.RetryPolicy{
		MaxRetries: cfg.Engine.MaxRetries,
		BaseWait:   cfg.Engine.RetryBaseWait,
	}
	if retry.MaxRetries < 0 {
		retry = service.DefaultRetryPolicy()
	}

	judge := service.NewJudge(invoker, retry, logger)
	scheduler := service.NewScheduler(store, bus, registry, invoker, judge, retry, logger)

	server := httpiface.NewServer(httpiface.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Mode: cfg.Server.Mode,
	}, store, scheduler, registry, bus, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		bus:       bus,
		registry:  registry,
		scheduler: scheduler,
		server:    server,
	}, nil
}

// Start brings up the HTTP server.
func (a *App) Start(ctx context.Context) error {
	return a.server.Start(ctx)
}

// Stop shuts down the HTTP server and closes the event bus.
func (a *App) Stop(ctx context.Context) error {
	err := a.server.Stop(ctx)
	a.bus.Close()
	return err
}

// Store exposes the persistence layer to auxiliary commands (seeding).
func (a *App) Store() *persistence.Store {
	return a.store
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}
