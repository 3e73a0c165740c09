package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/agromet-sync/internal/api/http"
	"github.com/i474232898/agromet-sync/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agromet",
		Short:         "Weather cache/sync engine with agronomic alert rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSyncCmd(), newAlertsCmd())
	return root
}

// withApp loads configuration, wires the application and runs fn with a
// context cancelled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sync scheduler",
		RunE: func(*cobra.Command, []string) error {
			return withApp(serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	if err := a.sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer a.sched.Stop()

	srv := fiber.New(fiber.Config{
		AppName:               "agromet",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          a.cfg.HTTPTimeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})
	srv.Use(recover.New())
	srv.Use(requestLogger(a.log))

	httpapi.RegisterRoutes(srv, httpapi.Deps{
		Weather:  a.service,
		Alerts:   a.alerts,
		Checker:  a.engine,
		Settings: a.settings,
		Fields:   a.fields,
		Gatherer: prometheus.DefaultGatherer,
	})

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("port", a.cfg.Port).Msg("http server listening")
		errCh <- srv.Listen(":" + a.cfg.Port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("error during shutdown")
	}
	a.log.Info().Msg("shutdown complete")
	return nil
}

func requestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		log.Info().Str("method", c.Method()).Str("path", c.Path()).Int("status", status).
			Dur("took", time.Since(start)).Msg("request")
		return err
	}
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass over all fields",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "current",
			Short: "Refresh current weather for every field",
			RunE: func(*cobra.Command, []string) error {
				return withApp(func(ctx context.Context, a *app) error {
					return a.sched.RunCurrentPass(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "forecast",
			Short: "Refresh forecasts for every field and evaluate rules",
			RunE: func(*cobra.Command, []string) error {
				return withApp(func(ctx context.Context, a *app) error {
					return a.sched.RunForecastPass(ctx)
				})
			},
		},
	)
	return cmd
}

func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Alert rule operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Evaluate all enabled rules against the default forecast window",
		RunE: func(*cobra.Command, []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.sched.RunAlertPass(ctx)
			})
		},
	})
	return cmd
}
