package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/broadcast"
)

// Daemon runs the background sync loop and, when configured, a local
// websocket endpoint that mirrors change signals to interested UIs.
func (a *App) Daemon(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		errCh <- a.syncer.Run(ctx)
	}()

	var srv *http.Server
	if a.cfg.BroadcastAddr != "" {
		hub := broadcast.NewHub(a.bus, a.logger)
		go hub.Run(ctx)

		mux := http.NewServeMux()
		mux.Handle("/signals", hub)
		srv = &http.Server{Addr: a.cfg.BroadcastAddr, Handler: mux}
		go func() {
			a.logger.Info(ctx, "signal socket listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	fmt.Fprintln(a.out, "Daemon running. Press Ctrl-C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
		cancel()
	}

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(shutdownCtx, "failed to shut down signal socket", "error", err)
		}
	}
	return runErr
}
