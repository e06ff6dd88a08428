package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/moments/internal/engine"
	"github.com/roach88/moments/internal/notify"
	"github.com/roach88/moments/internal/server"
	"github.com/roach88/moments/internal/store"
	"github.com/roach88/moments/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	Catalog string
	DB      string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		Long: `Serve turns, card dismissal, feasibility queries and a server-sent event
stream of artifact and card notifications.

Routes:
  POST   /subjects/{id}/turns
  GET    /subjects/{id}
  DELETE /subjects/{id}
  GET    /subjects/{id}/events
  POST   /subjects/{id}/cards/{instance}/dismiss
  POST   /subjects/{id}/artifacts/{artifact}/reset
  POST   /subjects/{id}/actions/{action}/feasibility
  GET    /healthz`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "catalog file (overrides config)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.Catalog != "" {
		cfg.Catalog.Path = opts.Catalog
	}
	if opts.DB != "" {
		cfg.Storage.Path = opts.DB
	}
	logger := opts.Logger(cmd.ErrOrStderr(), cfg.Log.Level)

	cat, err := loadCatalog(f, cfg.Catalog.Path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, cmd.ErrOrStderr(), logger)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeEngine, "failed to init telemetry: "+err.Error(), nil)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	hub := notify.NewHub(notify.WithHubLogger(logger))
	rt, err := openRuntime(cfg, cat, cfg.Storage.Path, logger,
		engine.WithDispatcher(notify.Multi{hub, notify.LogDispatcher{Logger: logger}}),
	)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStorage, err.Error(), nil)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := rt.close(closeCtx); err != nil {
			logger.Error("engine shutdown failed", "error", err)
		}
	}()

	if err := reportPersisted(ctx, rt.store, logger); err != nil {
		return f.Fail(ExitCommandError, ErrCodeStorage, err.Error(), nil)
	}

	srv := server.New(cfg.Server.Addr, rt.engine, hub, rt.store, logger)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return f.Fail(ExitCommandError, ErrCodeEngine, err.Error(), nil)
	}
	logger.Info("server stopped")
	return nil
}

// reportPersisted logs what earlier runs left in the store. Artifacts still
// marked generating were interrupted and are retried once their subject is
// restored.
func reportPersisted(ctx context.Context, st *store.Store, logger *slog.Logger) error {
	subjects, err := st.Subjects(ctx)
	if err != nil {
		return err
	}
	interrupted, err := st.CountGenerating(ctx)
	if err != nil {
		return err
	}

	logger.Info("store opened",
		"driver", st.Driver(),
		"subjects", len(subjects))
	if interrupted > 0 {
		logger.Warn("interrupted generations found",
			"artifacts", interrupted)
	}
	return nil
}
