package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// startHTTPServer serves router until ctx is canceled or the listener fails,
// then drains connections and in-flight tasks within the shutdown timeout.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	addr := net.JoinHostPort("", strconv.Itoa(app.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		app.cleanup(ctx)
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return app.serve(ctx, ln, router)
}

func (app *application) serve(ctx context.Context, ln net.Listener, router http.Handler) error {
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Sync requests can legitimately take minutes.
		WriteTimeout: app.config.Server.SyncTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case err := <-serveErr:
		if err != nil {
			app.logger.Error("server failed", "error", err)
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		runErr = errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}

	app.cleanup(shutdownCtx)

	app.logger.Info("server shutdown completed")
	return runErr
}
