package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"crmapp/internal/app"
	"crmapp/internal/backend"
	"crmapp/internal/board"
	"crmapp/internal/config"
	"crmapp/internal/live"
	"crmapp/internal/server"
	"crmapp/internal/storage"
)

const (
	sweepInterval = 10 * time.Minute
	sessionIdle   = time.Hour
)

var (
	serveAddr   string
	serveStatic string
	serveNoLive bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web front end",
	Long: `Serve the mini-app pages, the JSON view and the live update socket.

Flags override the config file; CRM_* environment variables override both
defaults and file values.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from config)")
	serveCmd.Flags().StringVar(&serveStatic, "static", "", "Directory overriding the embedded assets")
	serveCmd.Flags().BoolVar(&serveNoLive, "no-live", false, "Disable the live update socket")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if serveStatic != "" {
		cfg.StaticDir = serveStatic
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.State, logger)
	if err != nil {
		logger.Error("unable to open state store", slog.String("error", err.Error()))
		return err
	}
	defer store.Close()

	var hub *live.Hub
	if !serveNoLive {
		hub = live.NewHub(logger, originMatcher(cfg.CORS.AllowedOrigins))
	}

	registry, err := newRegistry(cfg, store, hub, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(registry, hub, server.Options{
		BotToken:       cfg.Telegram.BotToken,
		InitDataMaxAge: cfg.Telegram.InitDataMaxAge,
		SessionSecret:  cfg.Session.Secret,
		SessionTTL:     cfg.Session.TTL,
		CookieName:     cfg.Session.CookieName,
		FallbackUserID: cfg.View.FallbackUserID,
		StaticDir:      cfg.StaticDir,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, logger)
	if err != nil {
		return err
	}
	if cfg.Telegram.BotToken == "" {
		logger.Warn("no bot token configured, telegram sign-in is disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", httpServer.Addr), slog.String("backend", cfg.Backend.BaseURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if hub != nil {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		sweep(gctx, registry, store, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

// newRegistry builds the per-user controller factory from cfg. Mutations
// are announced to other sessions and, when hub is set, to open pages.
func newRegistry(cfg *config.Config, store app.StateStore, hub *live.Hub, logger *slog.Logger) (*app.Registry, error) {
	opts, err := controllerOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(logger))

	var registry *app.Registry
	registry = app.NewRegistry(func() *app.Controller {
		publishers := app.Publishers{registry}
		if hub != nil {
			publishers = append(publishers, hub)
		}
		return app.New(client, opts,
			app.WithStore(store),
			app.WithPublisher(publishers),
			app.WithLogger(logger))
	})
	return registry, nil
}

func controllerOptions(cfg *config.Config) (app.Options, error) {
	dayKey, err := board.ParseDayKey(cfg.View.DayKey)
	if err != nil {
		return app.Options{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return app.Options{}, err
	}
	return app.Options{
		DayKey:              dayKey,
		Limit:               cfg.View.BucketLimit,
		ReloadAfterMutation: cfg.View.ReloadAfterMutation,
		FallbackUserID:      cfg.View.FallbackUserID,
		FallbackName:        cfg.View.FallbackName,
		Location:            loc,
	}, nil
}

// originMatcher allows live connections from the configured origins. A
// wildcard or an empty list keeps the same-origin default.
func originMatcher(origins []string) func(string) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return nil
	}
	return func(origin string) bool { return slices.Contains(origins, origin) }
}

type pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// sweep drops idle sessions and, for stores that support it, page state
// untouched for a long time.
func sweep(ctx context.Context, registry *app.Registry, store storage.Store, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if n := registry.Sweep(sessionIdle); n > 0 {
			logger.Debug("idle sessions dropped", slog.Int("count", n), slog.Int("live", registry.Len()))
		}
		p, ok := store.(pruner)
		if !ok {
			continue
		}
		n, err := p.Prune(ctx, time.Now().AddDate(0, 0, -90))
		if err != nil {
			logger.Warn("prune page state", slog.String("error", err.Error()))
			continue
		}
		if n > 0 {
			logger.Info("stale page state pruned", slog.Int64("count", n))
		}
	}
}
