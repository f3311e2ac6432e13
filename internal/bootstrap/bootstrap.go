package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/sstepanchuk/leptos-image/internal/domain/eventbus"
	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"
	optimizestore "github.com/sstepanchuk/leptos-image/internal/domain/optimize/store"
	platformconfig "github.com/sstepanchuk/leptos-image/internal/platform/config"
	platformerrors "github.com/sstepanchuk/leptos-image/internal/platform/errors"
	platformlogging "github.com/sstepanchuk/leptos-image/internal/platform/logging"
	platformobservability "github.com/sstepanchuk/leptos-image/internal/platform/observability"
	platformstorage "github.com/sstepanchuk/leptos-image/internal/platform/storage"
	httptransport "github.com/sstepanchuk/leptos-image/internal/transport/http"
	httpimaging "github.com/sstepanchuk/leptos-image/internal/transport/http/imaging"
	httpwebapi "github.com/sstepanchuk/leptos-image/internal/transport/http/webapi"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	placeholderStore      optimizestore.Store
	bus                   *eventbus.Bus
	optimizer             *optimize.Optimizer
}

// Run drives the whole service lifecycle: configuration, dependency
// initialisation, the HTTP server and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.Wrap(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
			errors.New("config/logger not initialised"),
		)
	}

	if state.optimizer == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"optimizer not initialised",
		)
	}

	if state.placeholderStore == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"placeholder store not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("BOOT", "observability did not shut down cleanly: %v", err)
			}
		}()
	}

	defer optimize.Shutdown()

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := state.placeholderStore.Close(closeCtx); err != nil {
			logger.ErrorTag("STORE", "placeholder store did not close cleanly: %v", err)
		}
	}()

	defer func() {
		if state.bus != nil {
			state.bus.Close()
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "server stopped")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "initialisation graph")
	for _, step := range steps {
		if len(step.DependsOn) > 0 {
			logger.InfoTag("BOOT", "%s: %s (after %s)", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
		} else {
			logger.InfoTag("BOOT", "%s: %s", step.ID, step.Title)
		}
	}
	logger.InfoTag("BOOT", "starting services")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load-runtime",
			Title:   "Load runtime configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadRuntimeConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load-runtime"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "optimize:init-engine",
			Title:     "Start image engine",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initImageEngineStep,
		},
		{
			ID:        "storage:open-database",
			Title:     "Open placeholder database",
			DependsOn: []string{"config:load-runtime", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   openDatabaseStep,
		},
		{
			ID:        "store:init-placeholder",
			Title:     "Initialise placeholder store",
			DependsOn: []string{"storage:open-database", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initPlaceholderStoreStep,
		},
		{
			ID:        "eventbus:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"store:init-placeholder"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "optimize:init-service",
			Title:     "Initialise optimizer",
			DependsOn: []string{"optimize:init-engine", "eventbus:init-bus"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initOptimizerStep,
		},
	}
}

func loadRuntimeConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader()
	config, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load-runtime", "failed to load configuration", err)
	}

	state.config = config
	state.configPath = loader.Path()
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.NewLogger(&platformlogging.Config{
		Level: state.config.Log.Level,
		Dir:   state.config.Log.Dir,
		File:  state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	state.slogger = logger.Slog()

	logger.InfoTag(
		"BOOT",
		"logging ready [%s] config=%s",
		state.config.Log.Level,
		state.configPath,
	)

	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	slogger := state.slogger
	if slogger == nil {
		slogger = state.logger.Slog()
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown

	return nil
}

func initImageEngineStep(_ context.Context, state *appState) error {
	if state == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"optimize:init-engine",
			"logger not initialised",
		)
	}

	// Zero lets libvips size its own worker pool; Cache.Parallelism only
	// bounds concurrent generations.
	optimize.Startup(0, state.logger)
	return nil
}

// openDatabaseStep opens the sqlite database backing the placeholder
// store. Memory and redis drivers need no database, so the step is a
// no-op for them.
func openDatabaseStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindStorage,
			"storage:open-database",
			"missing config/logger",
		)
	}

	driver := strings.ToLower(strings.TrimSpace(state.config.Store.Type))
	if driver != optimizestore.DriverSQLite {
		return nil
	}

	db, err := platformstorage.Open(state.config.Store.SQLite.DSN)
	if err != nil {
		return err
	}

	state.db = db
	state.logger.InfoTag("STORE", "sqlite database ready at %s", state.config.Store.SQLite.DSN)
	return nil
}

func initPlaceholderStoreStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindStorage,
			"store:init-placeholder",
			"missing config/logger",
		)
	}

	driver := strings.ToLower(strings.TrimSpace(state.config.Store.Type))
	storeCfg := optimizestore.Config{Driver: driver}
	if driver == optimizestore.DriverRedis {
		storeCfg.Redis = &optimizestore.RedisConfig{
			Addr:     state.config.Store.Redis.Addr,
			Username: state.config.Store.Redis.Username,
			Password: state.config.Store.Redis.Password,
			DB:       state.config.Store.Redis.DB,
			Prefix:   state.config.Store.Redis.Prefix,
		}
	}

	placeholderStore, err := optimizestore.New(storeCfg, optimizestore.Dependencies{
		SQLiteDB: state.db,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "store:init-placeholder", "failed to create placeholder store", err)
	}

	state.placeholderStore = placeholderStore
	if driver == "" {
		driver = optimizestore.DriverMemory
	}
	state.logger.InfoTag("STORE", "placeholder store ready driver=%s", driver)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.placeholderStore == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"eventbus:init-bus",
			"placeholder store not initialised",
		)
	}

	bus := eventbus.New(0, state.logger)
	listener := optimize.NewCreatedListener(state.placeholderStore, state.logger)
	if err := bus.Subscribe(optimize.TopicImageCreated, listener); err != nil {
		bus.Close()
		return platformerrors.Wrap(platformerrors.KindBootstrap, "eventbus:init-bus", "failed to subscribe placeholder listener", err)
	}

	state.bus = bus
	return nil
}

func initOptimizerStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"optimize:init-service",
			"missing config/logger",
		)
	}

	optimizer, err := optimize.New(optimize.Options{
		Root:        state.config.Cache.Root,
		HandlerPath: state.config.Cache.HandlerPath,
		Parallelism: state.config.Cache.Parallelism,
		Limits:      state.config.Cache.Limits,
		Logger:      state.logger,
		Bus:         state.bus,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "optimize:init-service", "failed to create optimizer", err)
	}

	state.optimizer = optimizer
	return nil
}

func startHTTPServer(
	state *appState,
	g *errgroup.Group,
	groupCtx context.Context,
) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "api not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.Status(http.StatusNotFound)
	})

	imagingService, err := httpimaging.NewService(config, state.optimizer, state.placeholderStore, logger)
	if err != nil {
		logger.ErrorTag("HTTP", "imaging service initialisation failed: %v", err)
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "imaging:new-service", "failed to create imaging service", err)
	}
	if err := imagingService.Register(groupCtx, httpRouter.Cache); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "imaging:register", "failed to register imaging routes", err)
	}

	if config.Web.APIEnabled {
		webapiService, err := httpwebapi.NewService(config, state.placeholderStore, logger)
		if err != nil {
			logger.ErrorTag("WEBAPI", "webapi service initialisation failed: %v", err)
			return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:new-service", "failed to create webapi service", err)
		}
		if err := webapiService.Register(groupCtx, httpRouter.API); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:register", "failed to register webapi routes", err)
		}
	}

	httpServer := &http.Server{
		Addr:    net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port)),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "server listening on http://%s", httpServer.Addr)
		logger.InfoTag("HTTP", "image endpoint: http://%s%s", httpServer.Addr, config.Cache.HandlerPath)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "graceful shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server shut down cleanly")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

// startPreList warms the placeholder store from derivatives already on
// disk. It runs in the background so startup never waits for a large
// cache directory, and a failed pass only logs.
func startPreList(state *appState, g *errgroup.Group, groupCtx context.Context) {
	if !state.config.Cache.PreList {
		return
	}

	prelister := optimize.NewPreLister(state.config.Cache.Root, state.placeholderStore, state.logger)
	g.Go(func() error {
		if _, err := prelister.Run(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			state.logger.WarnTag("CACHE", "placeholder prelist failed: %v", err)
		}
		return nil
	})
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "received %v, cleaning up", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with errors: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		timeoutErr := errors.New("shutdown timed out")
		logger.ErrorTag("BOOT", "shutdown timed out, forcing exit")
		return timeoutErr
	}
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if _, err := startHTTPServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	startPreList(state, g, groupCtx)

	return nil
}
