// Package main provides the entry point of the Kiriban visit counter service
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/Kiriban/app/handlers"
	"github.com/amirphl/Kiriban/app/router"
	"github.com/amirphl/Kiriban/app/scheduler"
	"github.com/amirphl/Kiriban/app/services"
	businessflow "github.com/amirphl/Kiriban/business_flow"
	"github.com/amirphl/Kiriban/config"
	"github.com/amirphl/Kiriban/repository"
	"github.com/amirphl/Kiriban/utils"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var version = "dev"

// rootOptions holds flags shared by every command
type rootOptions struct {
	configPath string
	cfg        *config.ProductionConfig
}

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	logger    *log.Logger
	stopFuncs []func()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "kiriban",
		Short:        "Kiriban visit counter with milestone token issuance",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadProductionConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("KIRIBAN_CONFIG"), "path to a YAML config file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newCounterCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and background reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(opts.cfg)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := initializeDatabase(opts.cfg.Database)
			if err != nil {
				return err
			}
			defer repository.Close(db)
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newCounterCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Manage counters",
	}

	var in businessflow.CreateCounterInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounterFlow(opts.cfg, func(ctx context.Context, flow businessflow.CounterFlow) error {
				counter, err := flow.Create(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd, counter)
			})
		},
	}
	create.Flags().StringVar(&in.CounterID, "id", "", "counter id (generated when empty)")
	create.Flags().Int64Var(&in.InitialCount, "initial", 0, "initial count")
	create.Flags().IntVar(&in.DigitWidth, "digits", 6, "minimum number of digits shown")
	create.Flags().StringVar(&in.MilestoneKind, "kind", "", "milestone kind: round_or_repdigit_100 or round_or_repdigit_10")

	show := &cobra.Command{
		Use:   "show <counter-id>",
		Short: "Show a counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounterFlow(opts.cfg, func(ctx context.Context, flow businessflow.CounterFlow) error {
				counter, err := flow.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, counter)
			})
		},
	}

	cmd.AddCommand(create, show)
	return cmd
}

func withCounterFlow(cfg *config.ProductionConfig, fn func(context.Context, businessflow.CounterFlow) error) error {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer repository.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, businessflow.NewCounterFlow(repository.NewCounterRepository(db)))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServer(cfg *config.ProductionConfig) error {
	logger, closeLog, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()
	log.SetOutput(logger.Writer())
	log.SetFlags(logger.Flags())

	logger.Println("Starting Kiriban application...")

	shutdownTracing, err := services.InitTracing(context.Background(), cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErr <- app.router.Start(address)
	}()

	select {
	case <-sigChan:
		logger.Println("Shutting down gracefully...")
	case err := <-serverErr:
		logger.Printf("Server stopped unexpectedly: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		logger.Printf("Error during shutdown: %v", err)
	}

	// Background workers stop after in-flight requests have drained
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("Error flushing traces: %v", err)
	}

	logger.Println("Server stopped")
	return nil
}

// initializeDatabase opens the configured database and applies migrations
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := repository.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		repository.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Printf("Database ready (driver=%s)", cfg.Driver)
	return db, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis to surface connectivity
// issues in the logs. The returned func stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *log.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

func initializeIssuer(cfg config.IssuanceConfig) services.IssuanceClient {
	switch cfg.Provider {
	case "http":
		return services.NewHTTPIssuanceClient(cfg.BaseURL, cfg.APIKey, cfg.TokenIDPath, cfg.Timeout, cfg.RateLimit, cfg.RateBurst)
	default:
		log.Printf("Using mock issuance client (fail rate %.2f)", cfg.MockFailRate)
		return services.NewMockIssuanceClient(cfg.MockFailRate)
	}
}

func initializeGuard(cfg *config.ProductionConfig, repo repository.IssuanceRecordRepository, rc *redis.Client) (businessflow.IssuanceGuard, error) {
	durable := businessflow.NewDBIssuanceGuard(repo)
	if cfg.Cache.GuardBackend != "redis" {
		return durable, nil
	}
	if rc == nil {
		return nil, errors.New("redis guard backend requires an enabled redis cache")
	}
	return businessflow.NewRedisIssuanceGuard(rc, cfg.Cache, durable, cfg.Scheduler.OrphanAfter), nil
}

// initializeApplication wires repositories, flows, handlers and background jobs
func initializeApplication(cfg *config.ProductionConfig, logger *log.Logger) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, func() {
		if err := repository.Close(db); err != nil {
			logger.Printf("Error closing database: %v", err)
		}
	})

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second, logger))
	}

	counterRepo := repository.NewCounterRepository(db)
	issuanceRepo := repository.NewIssuanceRecordRepository(db)
	assetRepo := repository.NewTokenAssetRepository(db)

	renderer, err := services.NewImageRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image renderer: %w", err)
	}

	guard, err := initializeGuard(cfg, issuanceRepo, rc)
	if err != nil {
		return nil, err
	}

	assetFlow := businessflow.NewAssetFlow(assetRepo, issuanceRepo, renderer, rc, cfg.Cache, cfg.Assets.PublicBaseURL, logger)
	visitFlow := businessflow.NewVisitFlow(counterRepo, guard, initializeIssuer(cfg.Issuance), assetFlow, cfg.Issuance.Timeout, logger)
	counterFlow := businessflow.NewCounterFlow(counterRepo)

	counterHandler := handlers.NewCounterHandler(counterFlow, visitFlow, renderer, cfg.Assets.PublicBaseURL, logger)
	assetHandler := handlers.NewAssetHandler(assetFlow, logger)
	healthHandler := handlers.NewHealthHandler(db, rc, version)

	if cfg.Scheduler.ReconcilerEnabled {
		reconciler := scheduler.NewIssuanceReconciler(issuanceRepo, cfg.Scheduler.ReconcilerSchedule, cfg.Scheduler.OrphanAfter, logger)
		stop, err := reconciler.Start(context.Background())
		if err != nil {
			return nil, err
		}
		stopFuncs = append(stopFuncs, stop)
	}

	return &Application{
		router:    router.NewFiberRouter(cfg, counterHandler, assetHandler, healthHandler, logger),
		config:    cfg,
		logger:    logger,
		stopFuncs: stopFuncs,
	}, nil
}
