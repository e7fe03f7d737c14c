package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dorsadeh/wheel/internal/dashboard"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the results dashboard",
		Long: `Serve a local web dashboard over the run history database. The
dashboard lists recorded runs and exposes a JSON API under /api.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Dashboard.Addr
			}

			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			srv := dashboard.NewServer(dashboard.Config{Addr: addr}, store, app.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to dashboard.addr from config)")
	return cmd
}
