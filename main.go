package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pharmacy/internal/app"
	"pharmacy/internal/config"
	"pharmacy/internal/database"
	"pharmacy/internal/jobs"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"
	"pharmacy/pkg/mailer"
	"pharmacy/pkg/rabbitmq"
	"pharmacy/pkg/tracing"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          "pharmacy",
		Short:        "Pharmacy storefront and back-office service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newSeedCmd(), newEventsCmd())
	return root
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func openDatabase() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			if migrate {
				if err := database.Migrate(db); err != nil {
					return err
				}
			}
			return serve(cfg, db)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before starting")
	return cmd
}

func serve(cfg *config.Config, db *gorm.DB) error {
	tp, err := tracing.Init("pharmacy", cfg.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()

	var events services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: cfg.RabbitMQExchange})
		if err != nil {
			return err
		}
		defer mqClient.Close()
		events = mqClient
	} else {
		slog.Warn("RABBITMQ_URL not set, domain events are not published")
	}

	a, err := app.New(cfg, db, app.Integrations{
		Mailer: mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}),
		Events: events,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := jobs.NewScheduler(a.Jobs()...)
	scheduler.Start(ctx)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.AppPort)
		listenErr <- a.Fiber.Listen(cfg.AppPort)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-listenErr:
		stop()
		_ = scheduler.Wait()
		return fmt.Errorf("server failed: %w", err)
	}

	if err := a.Fiber.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("error during fiber shutdown", "error", err)
	}
	if err := scheduler.Wait(); err != nil {
		slog.Error("background jobs stopped with an error", "error", err)
	}
	slog.Info("server gracefully stopped")
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			slog.Info("schema migrated")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var opts database.SeedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert reference data and the first admin account",
		Long: "Inserts cities, branches, lookup tables, a sample catalog and the admin account.\n" +
			"Existing rows are kept, so the command can be re-run safely.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			if err := database.Seed(cmd.Context(), repositories.NewStore(db), opts); err != nil {
				return err
			}
			slog.Info("seed data applied", "admin_email", opts.AdminEmail)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.AdminEmail, "admin-email", "admin@pharmacy.local", "email of the admin account")
	cmd.Flags().StringVar(&opts.AdminPassword, "admin-password", os.Getenv("ADMIN_PASSWORD"), "password of the admin account (default $ADMIN_PASSWORD)")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var queue string
	var keys []string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Consume domain events from RabbitMQ and log them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.RabbitMQURL == "" {
				return errors.New("RABBITMQ_URL must be set")
			}
			mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: cfg.RabbitMQExchange})
			if err != nil {
				return err
			}
			defer mqClient.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return mqClient.Subscribe(ctx, queue, keys, logEvent)
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "pharmacy.audit", "queue to declare and consume")
	cmd.Flags().StringSliceVar(&keys, "keys", []string{"#"}, "routing keys to bind")
	return cmd
}

func logEvent(e rabbitmq.Event) error {
	slog.Info("event received", "type", e.Type, "occurred_at", e.OccurredAt, "data", e.Data)
	return nil
}
