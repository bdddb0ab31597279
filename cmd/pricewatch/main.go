// Package main wires together the price-watch service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pricewatch/pricewatch/internal/alert"
	"github.com/pricewatch/pricewatch/internal/api"
	"github.com/pricewatch/pricewatch/internal/clock/system"
	"github.com/pricewatch/pricewatch/internal/config"
	"github.com/pricewatch/pricewatch/internal/extractor"
	"github.com/pricewatch/pricewatch/internal/fetcher"
	"github.com/pricewatch/pricewatch/internal/logging"
	"github.com/pricewatch/pricewatch/internal/metrics"
	"github.com/pricewatch/pricewatch/internal/monitor"
	memorypublisher "github.com/pricewatch/pricewatch/internal/publisher/memory"
	pubsubpublisher "github.com/pricewatch/pricewatch/internal/publisher/pubsub"
	"github.com/pricewatch/pricewatch/internal/scheduler"
	"github.com/pricewatch/pricewatch/internal/siteconfig"
	memorystore "github.com/pricewatch/pricewatch/internal/store/memory"
	postgresstore "github.com/pricewatch/pricewatch/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store monitor.Store
		ready func(context.Context) error
	)
	if cfg.DB.DSN != "" {
		pg, err := postgresstore.New(ctx, postgresstore.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pg.Close()
		store = pg
		ready = pg.Ping
	} else {
		logger.Warn("db.dsn is empty, using in-memory store")
		store = memorystore.New()
	}

	registry, err := siteconfig.Load(cfg.Sites.Path, logger.Named("siteconfig"))
	if err != nil {
		logger.Fatal("site config load failed", zap.Error(err))
	}

	fetch, err := fetcher.New(fetcher.Config{
		Timeout:           cfg.ScrapeTimeout(),
		MaxRetries:        cfg.Scrape.MaxRetries,
		BackoffInitial:    time.Duration(cfg.Scrape.BackoffInitialMs) * time.Millisecond,
		BackoffMax:        time.Duration(cfg.Scrape.BackoffMaxMs) * time.Millisecond,
		DelayMin:          time.Duration(cfg.Scrape.DelayMinMs) * time.Millisecond,
		DelayMax:          time.Duration(cfg.Scrape.DelayMaxMs) * time.Millisecond,
		RotateProbability: cfg.Scrape.UserAgentRotate,
		RespectRobots:     cfg.Scrape.RespectRobots,
	}, logger.Named("fetcher"))
	if err != nil {
		logger.Fatal("fetcher init failed", zap.Error(err))
	}

	extract := extractor.New(cfg.Scrape.PriceCeiling, logger.Named("extractor"))

	var publisher monitor.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		ps, err := pubsubpublisher.Connect(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer ps.Stop()
		publisher = ps
	} else {
		publisher = memorypublisher.New()
	}

	policy, err := alert.ParsePolicy(cfg.Alerts.Policy)
	if err != nil {
		logger.Fatal("alert policy invalid", zap.Error(err))
	}
	engine := alert.NewEngine(store, publisher, policy, logger.Named("alerts"))

	sched := scheduler.New(
		store,
		fetch,
		extract,
		registry,
		engine,
		system.New(),
		scheduler.Config{
			SweepInterval:      cfg.Scheduler.SweepInterval,
			MaintenanceHourUTC: cfg.Scheduler.MaintenanceHourUTC,
			GlobalConcurrency:  cfg.Scheduler.GlobalConcurrency,
			Retention:          cfg.Retention(),
			FailureThreshold:   cfg.Scheduler.FailureThreshold,
		},
		logger.Named("scheduler"),
	)
	sched.Start(ctx)

	apiServer := api.NewServer(store, sched, ready, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	sched.Stop()
	logger.Info("shutdown complete")
}
