package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"visiond/internal/app"
	"visiond/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP server",
		Example: "  visiond serve --camera-dir ./frames --inference-url http://127.0.0.1:9000",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
}

// serve runs until ctx is canceled, then drains HTTP requests and stops
// every worker.
func serve(ctx context.Context, c *cli, opts ...app.OptionFunc) error {
	a, err := app.New(ctx, c.cfg, append([]app.OptionFunc{app.WithLogger(c.log)}, opts...)...)
	if err != nil {
		return err
	}
	defer a.Close()

	httpapi.SetLogger(c.log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetCORSOptions(c.cfg.CORS.Enabled, c.cfg.CORS.Origins, c.cfg.CORS.Methods, c.cfg.CORS.Headers)

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           httpapi.NewMux(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		c.log.Info().Str("addr", c.cfg.Addr).Str("cache_dir", c.cfg.CacheDir).Msg("visiond listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	c.log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		c.log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
