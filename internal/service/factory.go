// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/captcha"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/fields"
	"github.com/xkilldash9x/formpilot/internal/filler"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/workflow"
)

// ComponentFactory creates the set of components needed for a batch run.
// This abstraction is what makes the run command testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// Constructors for the components with external side effects. Tests replace
// them to avoid launching a browser or opening network connections.
type (
	dataStoreOpener func(ctx context.Context, cfg config.SourceConfig, logger *zap.Logger) (schemas.DataStore, error)
	historyOpener   func(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (schemas.HistoryStore, error)
	browserLauncher func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (BrowserManager, error)
)

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	openDataStore dataStoreOpener
	openHistory   historyOpener
	launchBrowser browserLauncher
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{
		openDataStore: InitializeDataStore,
		openHistory:   InitializeHistory,
		launchBrowser: func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (BrowserManager, error) {
			return browser.NewManager(ctx, cfg, logger)
		},
	}
}

// Create handles the full dependency injection and initialization of the run
// components.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Data store
	ds, err := f.openDataStore(ctx, cfg.Source(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.DataStore = ds
	logger.Debug("Data store initialized.")

	// 2. Run history
	history, err := f.openHistory(ctx, cfg.History(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.History = history
	logger.Debug("Run history initialized.")

	// 3. Browser
	manager, err := f.launchBrowser(ctx, cfg.Browser(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize browser manager: %w", err)
		return nil, initializationErr
	}
	// Add the manager immediately so the deferred Shutdown can close it.
	components.BrowserManager = manager
	logger.Debug("Browser manager initialized.")

	// 4. Per-site workflow
	fillCfg := cfg.Filler()
	runner, err := workflow.New(cfg.Workflow(), fillCfg.AnimationDelay, workflow.Dependencies{
		Sessions: manager,
		Status:   ds,
		Captcha:  captcha.New(cfg.Captcha(), logger),
		Filler:   filler.New(fillCfg, cfg.Browser().SlowMo, nil, logger),
		Resolver: fields.NewResolver(cfg.Fields()),
	}, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create site workflow: %w", err)
		return nil, initializationErr
	}
	logger.Debug("Site workflow initialized.")

	// 5. Orchestrator
	orch, err := orchestrator.New(cfg.Orchestrator(), logger, runner, ds, history)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Orchestrator = orch
	logger.Debug("Orchestrator initialized.")

	logger.Info("All run components initialized successfully.")
	return components, nil
}
