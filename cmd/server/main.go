package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pragrisk/internal/config"
	"pragrisk/internal/database"
	"pragrisk/internal/events"
	"pragrisk/internal/logging"
	"pragrisk/internal/metrics"
	"pragrisk/internal/risk"
	"pragrisk/internal/search"
	"pragrisk/internal/service"
	"pragrisk/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	serve := serveCmd()
	rootCmd := &cobra.Command{
		Use:   "pragrisk",
		Short: "Risk register API: actors, technologies, vulnerabilities, mitigations and scenarios",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		// no subcommand starts the server
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Flags().AddFlagSet(serve.Flags())

	rootCmd.AddCommand(
		serve,
		migrateCmd(),
		reindexCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "pragrisk:", err)
		os.Exit(1)
	}
}

// app holds everything built from the configuration.
type app struct {
	log       zerolog.Logger
	db        *gorm.DB
	index     search.Index
	publisher events.Publisher
	metrics   *metrics.Metrics
	services  *service.Services
}

func newApp(log zerolog.Logger) (*app, error) {
	policy, err := risk.ParsePolicy(cfg.Risk.Policy)
	if err != nil {
		return nil, err
	}
	tolerance, err := decimal.NewFromString(cfg.Risk.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("risk.tolerance %q: %w", cfg.Risk.Tolerance, err)
	}

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, db: db}

	if err := database.Migrate(db); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if a.index, err = search.Open(cfg.Search.Backend, cfg.Search.Path); err != nil {
		a.Close()
		return nil, fmt.Errorf("search index: %w", err)
	}

	a.publisher = events.Nop{}
	if cfg.Events.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			// events are best effort; the register works without them
			log.Warn().Err(err).Msg("change events disabled")
		} else {
			a.publisher = pub
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)

	stores, err := store.NewSet(db)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.services = service.New(stores, service.Deps{
		DB:      db,
		Index:   a.index,
		Events:  a.publisher,
		Metrics: a.metrics,
		Log:     log,
	}, service.Options{
		MaxDepth:  cfg.Hierarchy.MaxDepth,
		Policy:    policy,
		Tolerance: tolerance,
	})
	return a, nil
}

func (a *app) reindex(ctx context.Context) error {
	results, err := a.services.Reindex(ctx)
	for _, r := range results {
		a.log.Info().
			Str("kind", string(r.Kind)).
			Int("indexed", r.Indexed).
			Int("failed", r.Failed).
			Int("removed", r.Removed).
			Msg("reindexed")
	}
	return err
}

func (a *app) Close() {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn().Err(err).Msg("closing resources")
	}
}

func newLogger() zerolog.Logger {
	return logging.New(cfg.Logging, nil)
}
