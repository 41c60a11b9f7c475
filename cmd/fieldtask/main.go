package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldtask/internal/config"
	"fieldtask/internal/database"
	httpapi "fieldtask/internal/http"
	"fieldtask/internal/logger"
	"fieldtask/internal/repository"
	"fieldtask/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "fieldtask")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	// Optional DB-backed stores; without a reachable DB everything falls
	// back to in-memory repositories so local dev still works end to end.
	var db *sql.DB
	var templatesRepo repository.TemplatesRepository
	var tasksRepo repository.TasksRepository
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for fieldtask")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repositories", zap.Error(err))
		}
	}
	if db != nil {
		templatesRepo = repository.NewPostgresTemplatesRepository(db)
		tasksRepo = repository.NewPostgresTasksRepository(db)
	} else {
		templatesRepo = repository.NewMemoryTemplatesRepo()
		tasksRepo = repository.NewMemoryTasksRepo()
	}

	// The sweep lease needs redis; without it overlapping triggers are only
	// guarded by the CAS schedule advance.
	var redisClient *redis.Client
	var sweepLock *service.SweepLock
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sweepLock = service.NewSweepLock(redisClient, cfg.Generation.LeaseTTL)
	}

	var notifier *service.WebhookNotifier
	if cfg.Generation.WebhookURL != "" {
		notifier = service.NewWebhookNotifier(cfg.Generation.WebhookURL, log)
	}

	generation := service.NewGenerationService(templatesRepo, tasksRepo, log)
	runner := service.NewSweepRunner(generation, sweepLock, notifier, log)
	templates := service.NewTemplateService(templatesRepo, log)

	router := httpapi.NewRouter(log)
	router.RegisterGenerationRoutes(httpapi.NewGenerationHandler(runner, cfg.Generation.TriggerToken, cfg.Env, log))
	router.RegisterTemplateRoutes(httpapi.NewTemplatesHandler(templates, log))

	// Optional in-process trigger for deployments without an external
	// scheduler hitting the run endpoint.
	var scheduler *service.SchedulerService
	if cfg.Generation.CronEnabled {
		scheduler = service.NewSchedulerService(runner, log)
		if _, err := scheduler.ScheduleSweep(cfg.Generation.CronInterval); err != nil {
			log.Error("failed to schedule in-process sweep", zap.Error(err))
		} else {
			scheduler.Start()
			log.Info("in-process sweep trigger enabled",
				zap.Duration("interval", cfg.Generation.CronInterval))
		}
	}

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}
