package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/andreinita/fxcache/internal/api"
	"github.com/andreinita/fxcache/internal/bnr"
	"github.com/andreinita/fxcache/internal/config"
	cronworker "github.com/andreinita/fxcache/internal/cron"
	"github.com/andreinita/fxcache/internal/migrate"
	"github.com/andreinita/fxcache/internal/rates"
	"github.com/andreinita/fxcache/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:   "fxcache",
		Short: "Exchange-rate cache and conversion service",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env file is fine; the environment still applies.
			_ = godotenv.Load()
		},
	}

	root.AddCommand(serveCmd(), refreshCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily refresh scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.AutoMigrate {
				if err := migrate.Up(ctx, cfg.DBDriver, cfg.DBDSN); err != nil {
					log.Printf("auto-migration failed: %v", err)
				}
			}

			st, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
			if err != nil {
				return err
			}
			defer st.Close()

			svc := rates.NewService(st, newSourceClient(cfg))

			go func() {
				if err := cronworker.Run(ctx, svc, st, cfg.CronSpec); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("cron worker stopped: %v", err)
				}
			}()

			srv := &http.Server{
				Addr:    ":" + cfg.Port,
				Handler: api.NewMux(svc, st),
			}

			go func() {
				<-ctx.Done()
				if err := srv.Shutdown(context.Background()); err != nil {
					log.Printf("server shutdown: %v", err)
				}
			}()

			log.Printf("fxcache listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch and persist today's rates once, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			ctx := cmd.Context()

			st, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
			if err != nil {
				return err
			}
			defer st.Close()

			svc := rates.NewService(st, newSourceClient(cfg))
			if err := svc.Refresh(ctx); err != nil {
				return err
			}
			log.Printf("exchange rates refreshed")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	migrateRoot := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	run := func(fn func(ctx context.Context, driver, dsn string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			return fn(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
		}
	}

	migrateRoot.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply pending migrations", RunE: run(migrate.Up)},
		&cobra.Command{Use: "down", Short: "Roll back the last migration", RunE: run(migrate.Down)},
		&cobra.Command{Use: "status", Short: "Show migration status", RunE: run(migrate.Status)},
	)
	return migrateRoot
}

func newSourceClient(cfg config.Config) *bnr.Client {
	opts := []bnr.Option{
		bnr.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
	}
	if cfg.SourceURL != "" {
		opts = append(opts, bnr.WithURL(cfg.SourceURL))
	}
	return bnr.NewClient(opts...)
}
