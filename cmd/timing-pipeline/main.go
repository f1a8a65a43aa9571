// Package main provides the entry point for the timing pipeline daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/finish-line/internal/config"
	"github.com/yourusername/finish-line/internal/database"
	"github.com/yourusername/finish-line/internal/gateway"
	"github.com/yourusername/finish-line/internal/health"
	"github.com/yourusername/finish-line/internal/logger"
	"github.com/yourusername/finish-line/internal/metrics"
	"github.com/yourusername/finish-line/internal/notify"
	"github.com/yourusername/finish-line/internal/pipeline"
	"github.com/yourusername/finish-line/internal/ranking"
	"github.com/yourusername/finish-line/internal/repository"
	"github.com/yourusername/finish-line/internal/scheduler"
	"github.com/yourusername/finish-line/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithDefaults("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load AWS secrets if enabled
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set up logging
	appLog := logger.NewLogger(cfg.App.LogLevel)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
	}).Info("Finish Line timing pipeline starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	db, err := database.NewDB(ctx, &cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	appLog.Info("Database connection established")

	// Initialize repositories and core services
	repos := repository.NewRepositories(db)
	resolver := service.NewAssignmentResolver(repos.ChipAssignment, repos.ReaderAssignment, appLog)
	dedup := service.NewDeduplicator(repos.NormalizedRead)
	normalizer := service.NewNormalizer(appLog)
	engine := ranking.NewEngine(db, repos, appLog)
	debouncer := ranking.NewDebouncer(engine, cfg.Ranking.Debounce(), appLog)

	processor := pipeline.NewProcessor(db, repos, resolver, dedup, normalizer, engine, debouncer, &cfg.Pipeline, appLog)
	publisher := notify.NewPublisher(repos, &cfg.Leaderboard, appLog)

	// Start metrics endpoint
	metrics.InitRegistry()
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, metrics.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			appLog.WithField("address", addr).Info("Metrics endpoint listening")
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				appLog.WithError(err).Error("Metrics endpoint failed")
			}
		}()
	}

	// Start health check server
	healthServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Port:        cfg.Health.Port,
		Logger:      appLog,
		DB:          db,
	})
	if err := healthServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}

	// Start the reader gateway
	gw := gateway.NewServer(repos.RawRead, &cfg.Gateway, appLog)
	go func() {
		if err := gw.Start(ctx); err != nil {
			appLog.WithError(err).Error("Gateway stopped with error")
			cancel()
		}
	}()

	// Schedule the recurring jobs
	sched := scheduler.NewScheduler(processor, debouncer, publisher, repos.Event, appLog)
	if err := sched.ScheduleProcessing(cfg.Pipeline.PollIntervalSeconds, cfg.Pipeline.BatchTimeout()); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule processing cycle")
	}
	if err := sched.ScheduleRankFlush(cfg.Ranking.FlushIntervalSeconds); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule rank flush")
	}
	if cfg.Leaderboard.Enabled {
		if err := sched.ScheduleLeaderboardPush(cfg.Leaderboard.PushIntervalSeconds); err != nil {
			appLog.WithError(err).Fatal("Failed to schedule leaderboard push")
		}
	}
	if err := sched.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start scheduler")
	}

	healthServer.SetReady(true)
	appLog.WithFields(logrus.Fields{
		"gateway":     cfg.Gateway.ListenAddress,
		"workers":     cfg.Pipeline.Workers,
		"batch_size":  cfg.Pipeline.BatchSize,
		"leaderboard": cfg.Leaderboard.Enabled,
	}).Info("Timing pipeline running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	appLog.WithField("signal", sig).Info("Shutdown signal received")

	healthServer.SetReady(false)
	cancel()

	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Error("Error during scheduler shutdown")
	}
	if err := gw.Shutdown(); err != nil {
		appLog.WithError(err).Error("Error during gateway shutdown")
	}

	// Give in-flight batches time to commit
	time.Sleep(2 * time.Second)

	appLog.Info("Timing pipeline shut down successfully")
}
