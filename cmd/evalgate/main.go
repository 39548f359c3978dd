package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/application"
	"github.com/evalgate/evalgate/internal/infrastructure/config"
	"github.com/evalgate/evalgate/internal/infrastructure/logger"
	"github.com/evalgate/evalgate/internal/infrastructure/seed"
)

const (
	appName    = "evalgate"
	appVersion = "0.1.0"
)

func main() {
	// Check for subcommand
	mode := "serve"
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			mode = "serve"
		case "seed":
			mode = "seed"
		case "version":
			fmt.Printf("%s v%s\n", appName, appVersion)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
			printUsage()
			os.Exit(1)
		}
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logFormat := cfg.Log.Format
	if mode == "seed" {
		logFormat = "console"
	}
	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     logFormat,
		OutputPath: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting evalgate",
		zap.String("version", appVersion),
		zap.String("mode", mode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	switch mode {
	case "seed":
		runSeed(ctx, app, log)
	default:
		runServe(ctx, app, log)
	}
}

// runServe starts the HTTP control plane and blocks until a shutdown signal.
func runServe(ctx context.Context, app *application.App, log *zap.Logger) {
	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start application", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped")
}

// runSeed imports a YAML seed bundle and exits.
func runSeed(ctx context.Context, app *application.App, log *zap.Logger) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: evalgate seed <file.yaml>")
		os.Exit(1)
	}
	path := os.Args[2]

	seeder := seed.NewSeeder(app.Store(), log)
	if err := seeder.Import(ctx, path); err != nil {
		log.Fatal("Seed import failed", zap.String("file", path), zap.Error(err))
	}
}

func printUsage() {
	fmt.Printf(`%s v%s - multi-model benchmark harness

Usage:
  evalgate [command]

Commands:
  serve        Start the HTTP API server (default)
  seed <file>  Import providers, models, and problem sets from a YAML file
  version      Print version
  help         Show this help

Configuration is read from ~/.evalgate/config.yaml, ./config.yaml, and
EVALGATE_* environment variables.
`, appName, appVersion)
}
