// handlers.go contains the RunE handler functions for all CLI
// commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perchhq/perch-sync/internal/auth"
	"github.com/perchhq/perch-sync/internal/config"
	"github.com/perchhq/perch-sync/internal/observability"
	"github.com/perchhq/perch-sync/internal/queries"
	"github.com/perchhq/perch-sync/internal/shell"
	"github.com/perchhq/perch-sync/internal/store"
)

// runtime bundles everything the command handlers share.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	store   *store.SessionStore
	cleanup func(context.Context)
}

// setup loads configuration and assembles the ambient stack. The
// returned cleanup flushes traces and closes the session store.
func setup(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Observability.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Observability.Logging.Format = logFormat
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	})
	slog.SetDefault(logger)

	metrics := observability.NewMetrics()

	tracer, shutdownTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:  cfg.Observability.Tracing.ServiceName,
		Endpoint:     cfg.Observability.Tracing.Endpoint,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	sessionStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		shutdownTracer(ctx)
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		store:   sessionStore,
		cleanup: func(ctx context.Context) {
			if err := shutdownTracer(ctx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
			if err := sessionStore.Close(); err != nil {
				logger.Warn("session store close failed", "error", err)
			}
		},
	}, nil
}

// serveMetrics exposes /metrics when an address is configured.
func (rt *runtime) serveMetrics(ctx context.Context) {
	addr := rt.cfg.Observability.Metrics.Addr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		rt.logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.logger.Warn("metrics server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
}

// runShell wires a shell with the given view mounted and drives it
// until the context ends or the session expires.
func (rt *runtime) runShell(ctx context.Context, view shell.View) error {
	app, err := shell.New(shell.Options{
		Config:  rt.cfg,
		Logger:  rt.logger,
		Metrics: rt.metrics,
		Tracer:  rt.tracer,
		Store:   rt.store,
		OnSessionExpired: func() {
			fmt.Fprintln(os.Stderr, "session expired: log in again to obtain a new token")
		},
	})
	if err != nil {
		return err
	}
	if view != nil {
		app.Mount(view)
	}
	return app.Run(ctx)
}

func runRun(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.cleanup(context.Background())

	rt.logger.Info("starting perch-sync",
		"version", version,
		"commit", commit,
		"server", rt.cfg.Server.SocketURL,
	)
	rt.serveMetrics(ctx)

	return rt.runShell(ctx, &logView{logger: rt.logger})
}

func runTail(ctx context.Context, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.cleanup(context.Background())

	return rt.runShell(ctx, &tailView{out: os.Stdout, json: jsonOutput})
}

func runPresence(ctx context.Context, topic string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.cleanup(context.Background())

	app, err := shell.New(shell.Options{
		Config:  rt.cfg,
		Logger:  rt.logger,
		Metrics: rt.metrics,
		Tracer:  rt.tracer,
		Store:   rt.store,
	})
	if err != nil {
		return err
	}
	if err := app.WatchTopic(topic); err != nil {
		return err
	}

	// Print the roster whenever it changes.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var last string
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				roster := fmt.Sprintf("%v", app.Presence().Present(topic))
				if roster == last {
					continue
				}
				last = roster
				fmt.Fprintf(os.Stdout, "%s present on %s: %s\n",
					time.Now().Format(time.TimeOnly), topic, roster)
			}
		}
	}()

	return app.Run(ctx)
}

func runWhoami(ctx context.Context) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.cleanup(context.Background())

	token, err := currentToken(ctx, rt)
	if err != nil {
		return err
	}

	client := queries.NewClient(rt.cfg.Server.APIURL, func() string { return token.Raw },
		nil, rt.metrics, rt.tracer)
	me, err := client.Me(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s (%s)\n", me.Name, me.ID)
	return nil
}

func runTokenRefresh(ctx context.Context) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.cleanup(context.Background())

	current, err := currentToken(ctx, rt)
	if err != nil {
		return err
	}

	refresher := auth.NewHTTPRefresher(rt.cfg.Auth.RefreshURL, nil, rt.logger)
	fresh, err := refresher.Refresh(ctx, current)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}

	if err := rt.store.Save(ctx, auth.Session{Token: fresh, RefreshedAt: time.Now().UTC()}); err != nil {
		rt.logger.Warn("could not persist refreshed token", "error", err)
	}

	fmt.Fprintln(os.Stdout, fresh.Raw)
	rt.logger.Info("token refreshed",
		"subject", fresh.Subject,
		"expires_at", fresh.ExpiresAt,
	)
	return nil
}

// currentToken prefers the persisted session, falling back to the
// configured token.
func currentToken(ctx context.Context, rt *runtime) (auth.Token, error) {
	if session, err := rt.store.Load(ctx); err == nil {
		return session.Token, nil
	}
	if rt.cfg.Auth.Token == "" {
		return auth.Token{}, fmt.Errorf("no session token available; set auth.token or run with PERCH_TOKEN")
	}
	return auth.ParseToken(rt.cfg.Auth.Token)
}
