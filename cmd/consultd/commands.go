package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ippeo/consultd/internal/api"
	"github.com/ippeo/consultd/internal/config"
	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/hermes"
	"github.com/ippeo/consultd/internal/store"
)

func serveCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the NATS intake",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("consultd starting", "port", cfg.Port)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			a, err := newApp(ctx, cfg, reg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.hermes != nil {
				if err := a.hermes.Subscribe(hermes.SubjectConsultationRegistered, a.pipeline.HandleRegistered); err != nil {
					return fmt.Errorf("subscribe to registrations: %w", err)
				}
			}

			srv := api.NewServer(cfg.Port, cfg.APIToken, api.Deps{
				Store:     a.store,
				Runner:    a.pipeline,
				Retriever: a.retriever,
				Gatherer:  reg,
			}, slog.Default())
			if cfg.APIToken == "" {
				slog.Warn("CONSULTD_API_TOKEN not set, API is unauthenticated")
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()
			slog.Info("consultd ready", "port", cfg.Port, "report_types", cfg.ReportTypes)

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("http shutdown", "error", err)
			}
			slog.Info("consultd stopped")
			return nil
		},
	}
}

func runCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run <consultation-id>",
		Short: "Run the pipeline for one consultation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid consultation id: %w", err)
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				return a.pipeline.Run(ctx, id)
			})
		},
	}
}

func resumeCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <consultation-id> <plastic_surgery|dermatology>",
		Short: "Continue a consultation after manual classification",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid consultation id: %w", err)
			}
			category := domain.ParseCategory(args[1])
			if !category.Reportable() {
				return fmt.Errorf("invalid category %q", args[1])
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				return a.pipeline.Resume(ctx, id, category)
			})
		},
	}
}

func regenerateCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <report-id> <direction>",
		Short: "Rewrite one report following an admin direction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid report id: %w", err)
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				return a.pipeline.Regenerate(ctx, id, args[1])
			})
		},
	}
}

func migrateCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			db, err := store.New(cmd.Context(), cfg.DatabaseURL, cfg.ReportLinkTTL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			slog.Info("schema applied")
			return nil
		},
	}
}

// withApp builds the pipeline for a one-shot command. NATS is optional here.
func withApp(parent context.Context, cfg config.Config, fn func(context.Context, *app) error) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
