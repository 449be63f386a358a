package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/trickplay/internal/database"
	"github.com/mantonx/trickplay/internal/events"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule"
	"github.com/mantonx/trickplay/internal/server"
)

// moduleShutdownTimeout bounds how long running jobs get to wind down
const moduleShutdownTimeout = 30 * time.Second

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file (yaml or json)")
	logLevel := fs.String("log-level", "", "log level (trace, debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	log, closeLog, err := setupLogger(cfg.Logging, *logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}

	bus := events.NewEventBus(log)

	module := trickplaymodule.NewModule(cfg, db, bus, log)
	if err := module.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", module.Name(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := module.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", module.Name(), err)
	}

	if !log.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.SetupRouter(log, module)
	serveErr := server.New(cfg.Server, router, log).Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), moduleShutdownTimeout)
	defer cancel()
	if err := module.Shutdown(shutdownCtx); err != nil {
		log.Warn("module shutdown incomplete", "module", module.ID(), "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server shutdown complete")
	return serveErr
}
