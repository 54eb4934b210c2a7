package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/imagerelay/internal/api"
	apiMiddleware "github.com/phrazzld/imagerelay/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(apiMiddleware.AccessLog)
	r.Use(middleware.Recoverer)

	// Wiring errors here are programming errors; every dependency was
	// validated in newApplication.
	generateHandler, err := api.NewGenerateHandler(
		app.dispatcher,
		app.taskStore,
		app.config.Server.SyncTimeout,
		app.logger,
	)
	if err != nil {
		panic(err)
	}
	healthHandler := api.NewHealthHandler(app.monitor, app.taskStore, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", generateHandler.Generate)
		r.Post("/generate/async", generateHandler.GenerateAsync)
		r.Get("/status/{taskId}", generateHandler.Status)
	})

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", app.monitor.Handler())

	return r
}
