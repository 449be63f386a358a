// Package trickplaymodule generates trickplay tilesheets for video files.
//
// Architecture:
//
//	API / CLI / Watcher → Manager → Pipeline → (ffprobe, ffmpeg, image engine)
//
// The module is responsible for:
// - Running generation jobs in the background with bounded concurrency
// - Recording every job in the job ledger
// - Broadcasting job events to API subscribers
// - Queuing jobs for new files in watched library directories
package trickplaymodule

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/trickplay/internal/config"
	"github.com/mantonx/trickplay/internal/database"
	"github.com/mantonx/trickplay/internal/events"
	applog "github.com/mantonx/trickplay/internal/logger"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/api"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/ffmpeg"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/images"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/pipeline"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/session"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/watcher"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

const (
	// ModuleID is the unique identifier for the trickplay module
	ModuleID = "system.trickplay"

	// ModuleName is the display name for the trickplay module
	ModuleName = "Trickplay Generator"

	// ModuleVersion is the version of the trickplay module
	ModuleVersion = "1.0.0"
)

// Module wires the trickplay components together
type Module struct {
	cfg      *config.Config
	db       *gorm.DB
	eventBus events.EventBus
	logger   hclog.Logger

	pipeline *pipeline.Pipeline
	manager  *Manager
	watcher  *watcher.Watcher
}

// NewModule creates a new trickplay module
func NewModule(cfg *config.Config, db *gorm.DB, eventBus events.EventBus, logger hclog.Logger) *Module {
	if logger == nil {
		logger = applog.Default()
	}
	return &Module{
		cfg:      cfg,
		db:       db,
		eventBus: eventBus,
		logger:   logger.Named("trickplay"),
	}
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// GetVersion returns the module version
func (m *Module) GetVersion() string {
	return ModuleVersion
}

// Migrate performs any necessary database migrations
func (m *Module) Migrate(db *gorm.DB) error {
	m.logger.Info("migrating trickplay database schema")
	return database.Migrate(db)
}

// NewPipeline builds a pipeline backed by ffmpeg and the image engine
func NewPipeline(cfg config.FFmpegConfig, logger hclog.Logger) *pipeline.Pipeline {
	return pipeline.New(pipeline.Deps{
		Prober:    ffmpeg.NewProber(cfg.FFprobePath, logger),
		Extractor: ffmpeg.NewExtractor(cfg.FFmpegPath, logger),
		Engine:    images.NewEngine(),
		Logger:    logger,
	})
}

// Init creates the pipeline, job store and manager
func (m *Module) Init() error {
	if m.db == nil {
		return fmt.Errorf("trickplay module requires a database")
	}
	if m.eventBus == nil {
		return fmt.Errorf("trickplay module requires an event bus")
	}

	m.pipeline = NewPipeline(m.cfg.FFmpeg, m.logger)
	store := session.NewStore(m.db, m.logger)
	m.manager = NewManager(store, m.pipeline, m.eventBus, m.cfg, m.logger)

	m.logger.Info("trickplay module initialized")
	return nil
}

// Start checks the ffmpeg binaries, recovers the job ledger and starts the
// library watcher when enabled
func (m *Module) Start(ctx context.Context) error {
	if m.manager == nil {
		return fmt.Errorf("trickplay module is not initialized")
	}

	if err := ffmpeg.CheckAvailable(ctx, m.cfg.FFmpeg.FFmpegPath, m.cfg.FFmpeg.FFprobePath); err != nil {
		m.logger.Warn("ffmpeg is not available, jobs will fail until it is installed", "error", err)
	}

	if err := m.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job manager: %w", err)
	}

	if m.cfg.Watcher.Enabled {
		w, err := watcher.New(m.cfg.Watcher, m.submitDetected, m.eventBus, m.logger)
		if err != nil {
			return fmt.Errorf("failed to create library watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start library watcher: %w", err)
		}
		m.watcher = w
	}

	return nil
}

func (m *Module) submitDetected(ctx context.Context, path string) error {
	_, err := m.manager.SubmitIfIdle(ctx, path, types.TriggerWatcher)
	return err
}

// RegisterRoutes registers the trickplay HTTP routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if m.manager == nil {
		m.logger.Error("cannot register routes: trickplay manager is nil")
		return
	}

	handler := api.NewHandler(m.manager, m.logger)
	api.RegisterRoutes(router, handler)
}

// Manager returns the job manager
func (m *Module) Manager() *Manager {
	return m.manager
}

// Shutdown stops the watcher and cancels running jobs
func (m *Module) Shutdown(ctx context.Context) error {
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Warn("failed to stop library watcher", "error", err)
		}
	}
	if m.manager != nil {
		return m.manager.Shutdown(ctx)
	}
	return nil
}
