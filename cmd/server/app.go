package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/imagerelay/internal/config"
	"github.com/phrazzld/imagerelay/internal/events"
	"github.com/phrazzld/imagerelay/internal/invoker"
	"github.com/phrazzld/imagerelay/internal/monitor"
	"github.com/phrazzld/imagerelay/internal/platform/httpclient"
	"github.com/phrazzld/imagerelay/internal/provider"
	"github.com/phrazzld/imagerelay/internal/store"
	"github.com/phrazzld/imagerelay/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Outbound clients. Provider traffic may target private endpoints;
	// user-supplied URLs (reference images, callbacks) may not.
	providerClient *http.Client
	guardedClient  *http.Client

	taskStore  *store.MemoryTaskStore
	monitor    *monitor.Monitor
	emitter    *events.InMemoryEventEmitter
	executor   *task.Executor
	dispatcher *task.Dispatcher
}

// newApplication wires every component from cfg. Nothing is started except
// the store janitor.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	app.providerClient = httpclient.New(httpclient.Options{
		MaxIdleConns:        cfg.HTTP.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConnsPerHost,
		DNSServer:           cfg.HTTP.DNSServer,
	})
	app.guardedClient = httpclient.New(httpclient.Options{
		MaxIdleConns:        cfg.HTTP.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConnsPerHost,
		DNSServer:           cfg.HTTP.DNSServer,
		BlockPrivate:        !cfg.Fetch.AllowPrivate,
	})

	var err error
	app.taskStore, err = store.NewMemoryTaskStore(store.MemoryConfig{
		TTL:           cfg.Store.TTL,
		SweepInterval: cfg.Store.SweepInterval,
		MaxEntries:    cfg.Store.MaxEntries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task store: %w", err)
	}

	app.monitor = monitor.New(monitor.Config{
		MemoryLimitMB: cfg.Monitor.MemoryLimitMB,
		StoreSize:     app.taskStore.Len,
	})

	fetcher, err := provider.NewHTTPImageFetcher(app.guardedClient, cfg.Fetch.Timeout, cfg.Fetch.MaxBytes)
	if err != nil {
		app.taskStore.Close()
		return nil, fmt.Errorf("failed to create image fetcher: %w", err)
	}

	router, err := provider.NewRouter(provider.RouterConfig{
		ChatURL:   cfg.Providers.ChatURL,
		GeminiURL: cfg.Providers.GeminiURL,
		SoraModel: cfg.Providers.SoraModel,
	}, fetcher, logger)
	if err != nil {
		app.taskStore.Close()
		return nil, fmt.Errorf("failed to create provider router: %w", err)
	}

	inv, err := invoker.New(app.providerClient, invoker.Config{
		MaxAttempts:      cfg.Invoker.MaxAttempts,
		AttemptTimeout:   cfg.Invoker.AttemptTimeout,
		BaseDelay:        cfg.Invoker.BaseDelay,
		MaxDelay:         cfg.Invoker.MaxDelay,
		MaxResponseBytes: cfg.Invoker.MaxResponseBytes,
	}, logger, invoker.WithObserver(app.monitor))
	if err != nil {
		app.taskStore.Close()
		return nil, fmt.Errorf("failed to create provider invoker: %w", err)
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	if err := app.registerCallbacks(); err != nil {
		app.taskStore.Close()
		return nil, err
	}

	app.executor, err = task.NewExecutor(task.ExecutorDeps{
		Router:  router,
		Invoker: inv,
		Store:   app.taskStore,
		Emitter: app.emitter,
		Monitor: app.monitor,
		Logger:  logger,
	})
	if err != nil {
		app.taskStore.Close()
		return nil, fmt.Errorf("failed to create task executor: %w", err)
	}

	app.dispatcher, err = task.NewDispatcher(app.executor, logger)
	if err != nil {
		app.taskStore.Close()
		return nil, fmt.Errorf("failed to create task dispatcher: %w", err)
	}

	logger.Info("application initialized")
	return app, nil
}

// registerCallbacks hooks the callback notifier into the completion events.
func (app *application) registerCallbacks() error {
	var signer *task.CallbackSigner
	if secret := app.config.Callback.SigningSecret; secret != "" {
		var err error
		signer, err = task.NewCallbackSigner(secret)
		if err != nil {
			return fmt.Errorf("failed to create callback signer: %w", err)
		}
	}

	notifier, err := task.NewCallbackNotifier(app.guardedClient, app.config.Callback.Timeout, signer, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create callback notifier: %w", err)
	}
	app.emitter.RegisterHandler(notifier)
	return nil
}

// Run serves HTTP until ctx is canceled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup(ctx context.Context) {
	if app.dispatcher != nil {
		if err := app.dispatcher.Stop(ctx); err != nil {
			app.logger.Warn("in-flight tasks canceled at shutdown", "error", err)
		}
	}
	if app.taskStore != nil {
		app.taskStore.Close()
	}
	app.providerClient.CloseIdleConnections()
	app.guardedClient.CloseIdleConnections()

	app.logger.Info("application shutdown completed")
}
