package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database"
	"github.com/jay-chalkstep/cadaince-sub001/internal/server"
	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters/bigquery"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters/hubspot"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/anomaly"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/config"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/formula"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/jobs"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/logger"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/metricsync"
)

const serviceVersion = "1.0.0"

func main() {
	var (
		configFile = flag.String("config", "", "Path to configuration file")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("cadaince metrics engine v%s\n", serviceVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logFormat := logger.JSONFormat
	if cfg.Logging.Format == "text" {
		logFormat = logger.TextFormat
	}
	appLogger := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLogLevel(cfg.Logging.Level),
		Format:  logFormat,
		Output:  os.Stdout,
		Service: "cadaince-metrics",
		Version: serviceVersion,
	})

	ctx := context.Background()

	appLogger.WithFields(map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Database,
	}).Info("Connecting to database")
	conn, err := database.NewConnection(&cfg.Database)
	if err != nil {
		appLogger.Fatal("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		appLogger.Fatal("Database ping failed: %v", err)
	}

	st := store.NewGormStore(conn)

	bigqueryAdapter, err := bigquery.New(ctx, cfg.BigQuery, cfg.Policy)
	if err != nil {
		appLogger.Fatal("Failed to create BigQuery adapter: %v", err)
	}
	registry := adapters.Registry{
		adapters.ProviderHubSpot:  hubspot.New(cfg.HubSpot, cfg.Policy),
		adapters.ProviderBigQuery: bigqueryAdapter,
	}

	evaluator := formula.NewEvaluator(st, registry, appLogger)
	processor := metricsync.NewProcessor(st, registry, evaluator, appLogger)
	detector := anomaly.NewDetector(st, cfg.Anomaly, appLogger)
	runner := jobs.NewRunner(st, processor, detector, cfg.Jobs, appLogger)

	scheduler, err := jobs.NewScheduler(runner)
	if err != nil {
		appLogger.Fatal("Failed to create scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv, err := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, runner, st, conn, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize server: %v", err)
	}

	if err := srv.Start(ctx); err != nil {
		appLogger.Fatal("Server failed: %v", err)
	}
}
