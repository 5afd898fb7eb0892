package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/browser"
	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
	"github.com/ternarybob/probo/internal/services/events"
	"github.com/ternarybob/probo/internal/services/matrix"
	"github.com/ternarybob/probo/internal/services/runner"
	"github.com/ternarybob/probo/internal/services/session"
	"github.com/ternarybob/probo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	Driver         *browser.Driver
	Sessions       interfaces.SessionManager
	Scheduler      *runner.Scheduler

	// Specs is the generated matrix, validated against the declared plan
	// before any browser is launched
	Specs []models.TestSpec
}

// New wires the application. Matrix generation runs here as a pre-flight
// check so a malformed plan fails before any session or browser work.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	specs, err := matrix.Generate(&config.Matrix)
	if err != nil {
		return nil, fmt.Errorf("matrix generation failed: %w", err)
	}
	logger.Info().
		Int("specs", len(specs)).
		Int("categories", len(config.Matrix.Categories)).
		Msg("Test matrix generated")

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	eventService := events.NewService(logger)
	driver := browser.NewDriver(config, logger)
	sessions := session.NewManager(config, driver, storageManager.SessionStorage(), logger)
	scheduler := runner.NewScheduler(config, sessions, storageManager.ResultStorage(), eventService, logger)

	return &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		EventService:   eventService,
		Driver:         driver,
		Sessions:       sessions,
		Scheduler:      scheduler,
		Specs:          specs,
	}, nil
}

// RunOnce executes the full matrix as a single run
func (a *App) RunOnce(ctx context.Context) (*models.TestRun, error) {
	if err := a.Sessions.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("session initialization failed: %w", err)
	}
	return a.Scheduler.Execute(ctx, a.Specs)
}

// CaptureSession performs a standalone interactive capture and persists the
// result, without executing any tests
func (a *App) CaptureSession(ctx context.Context) (*models.AuthSession, error) {
	captured, err := a.Driver.CaptureSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("session capture failed: %w", err)
	}
	if err := a.StorageManager.SessionStorage().StoreSession(ctx, captured); err != nil {
		return nil, fmt.Errorf("failed to persist captured session: %w", err)
	}
	return captured, nil
}

// Close releases browser and storage resources
func (a *App) Close() {
	if a.Driver != nil {
		if err := a.Driver.Shutdown(); err != nil {
			a.Logger.Warn().Err(err).Msg("Browser shutdown failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
}
