package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/0xPuncker/batch-registry/internal/admin"
	"github.com/0xPuncker/batch-registry/internal/api"
	"github.com/0xPuncker/batch-registry/internal/config"
	"github.com/0xPuncker/batch-registry/internal/jobs"
	"github.com/0xPuncker/batch-registry/internal/metrics"
	"github.com/0xPuncker/batch-registry/internal/notifications"
	"github.com/0xPuncker/batch-registry/internal/poller"
	"github.com/0xPuncker/batch-registry/internal/registration"
	"github.com/0xPuncker/batch-registry/internal/repository"
	"github.com/0xPuncker/batch-registry/internal/scheduler"
	jobsconfig "github.com/0xPuncker/batch-registry/pkg/config"
	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/dimiro1/banner"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/mattn/go-colorable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const bannerText = `
{{ .Title "Batch Registry" "" 0 }}
{{ .AnsiBackground.BrightBlue }}{{ .AnsiColor.White }}
{{ .AnsiReset }}
`

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Printf("No .env or .env.local file found. Using environment variables.\n")
		}
	}

	banner.Init(colorable.NewColorableStdout(), true, true, strings.NewReader(bannerText))

	configPath := flag.String("config", "config/config.json", "path to config file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05-07:00",
	})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Unknown log level %q, using info", *logLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	var redisClient *redis.Client
	if cfg.Registration.Backend == config.BackendRedis || cfg.Redis.Stream != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("Failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
		}
		logger.WithField("addr", cfg.Redis.Addr).Info("Connected to redis")
	}

	ttl := config.Duration(cfg.Registration.TTL, 0)
	var applications types.ApplicationRepository
	switch cfg.Registration.Backend {
	case config.BackendRedis:
		applications = repository.NewRedisApplicationRepository(redisClient, logger, cfg.Redis.KeyPrefix, ttl)
	case config.BackendMemory, "":
		applications = repository.NewMemoryApplicationRepository(logger, ttl)
	default:
		logger.Fatalf("Unknown registration backend %q", cfg.Registration.Backend)
	}

	jobConfigurations, closeJobStore, err := openJobConfigurationRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open job configuration store: %v", err)
	}
	defer closeJobStore()

	publisher := notifications.NewPublisher(logger)
	publisher.Subscribe("log", notifications.LogListener(logger))

	var slackSender jobs.SlackSender
	if slack, err := notifications.NewSlackService(logger, cfg.Slack.WebhookURL); err != nil {
		logger.Warnf("Failed to initialize Slack service: %v", err)
	} else {
		publisher.Subscribe("slack", slack)
		slackSender = slack
	}

	if cfg.Redis.Stream != "" {
		publisher.Subscribe("stream", notifications.NewStreamListener(redisClient, logger, cfg.Redis.Stream))
	}

	registrations := registration.NewService(applications, publisher, logger, m)

	catalog := scheduler.NewCatalog(logger)
	schedulers := scheduler.NewRegistry(logger, catalog, cfg.SchedulerConfig(), m)

	manifest := scheduler.Manifest{
		Jobs: []scheduler.Job{
			jobs.NewPurgeStaleJob(registrations, logger),
			jobs.NewStatusReportJob(registrations, slackSender, logger),
		},
	}
	if err := scheduler.Startup(ctx, schedulers, manifest, jobConfigurations); err != nil {
		logger.Fatalf("Failed to start schedulers: %v", err)
	}

	adminService := admin.NewService(jobConfigurations, schedulers, logger)
	handler := api.NewHandler(registrations, adminService, schedulers, logger)

	var statusPoller *poller.Poller
	if cfg.Poller.Enabled {
		statusPoller = poller.New(
			registrations,
			logger,
			config.Duration(cfg.Poller.Interval, time.Minute),
			config.Duration(cfg.Poller.Timeout, 5*time.Second),
		)
		statusPoller.Start(ctx)
	}

	logger.Infof("Server started on port %s - Press Ctrl+C to stop.", cfg.Server.Port)

	err = api.StartServer(ctx, handler, promRegistry, api.ServerOptions{
		Port:         cfg.Server.Port,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
	})
	if err != nil {
		logger.Errorf("Server stopped with error: %v", err)
	}

	logger.Info("Shutting down server...")
	if statusPoller != nil {
		statusPoller.Stop()
	}
	schedulers.Stop()
	logger.Info("Server stopped")
}

func openJobConfigurationRepository(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (types.JobConfigurationRepository, func(), error) {
	switch cfg.Jobs.Backend {
	case config.BackendPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		repo := repository.NewPostgresJobConfigurationRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Using postgres job configuration store")
		return repo, func() { db.Close() }, nil

	case config.BackendMemory, "":
		var seed []types.JobConfiguration
		file, err := jobsconfig.LoadJobsFile(cfg.Jobs.File)
		if err != nil {
			logger.Warnf("No job configurations loaded from %s: %v", cfg.Jobs.File, err)
		} else {
			seed = file.Jobs
			logger.WithFields(logrus.Fields{
				"file":    cfg.Jobs.File,
				"total":   len(file.Jobs),
				"enabled": len(file.EnabledJobs()),
			}).Info("Loaded job configurations")
		}
		return repository.NewMemoryJobConfigurationRepository(seed), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown job configuration backend %q", cfg.Jobs.Backend)
	}
}
