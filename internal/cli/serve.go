package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/web"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the study API over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().StringP("listen", "l", "", "Address to listen on (default :8080)")
	cmd.Flags().Duration("tick-interval", 0, "How often learning cards are promoted (default 1s)")
	cmd.Flags().Bool("sync", false, "Sync all sources before serving")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg, clock.Real{})
	if err != nil {
		return err
	}
	defer a.Close()

	if doSync, _ := cmd.Flags().GetBool("sync"); doSync {
		results, err := a.syncer.RunSync(ctx)
		if err != nil {
			return err
		}
		printSyncResults(cmd.ErrOrStderr(), results)
	}

	srv := web.NewServer(web.Deps{
		DB:        a.db,
		Syncer:    a.syncer,
		Algorithm: a.alg,
		Builder:   a.builder,
		Settings:  a.settings,
		Clock:     a.clock,
	})
	go srv.RunTicker(ctx, cfg.TickInterval)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
