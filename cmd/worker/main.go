package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/replenishment/internal/app"
	"github.com/odyssey-erp/replenishment/internal/inventory"
	jobmetrics "github.com/odyssey-erp/replenishment/internal/jobs"
	"github.com/odyssey-erp/replenishment/internal/observability"
	"github.com/odyssey-erp/replenishment/internal/picking"
	"github.com/odyssey-erp/replenishment/internal/platform/cache"
	"github.com/odyssey-erp/replenishment/internal/platform/db"
	"github.com/odyssey-erp/replenishment/internal/platform/lock"
	"github.com/odyssey-erp/replenishment/internal/platform/tracing"
	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/shared"
	"github.com/odyssey-erp/replenishment/internal/stockrule"
	"github.com/odyssey-erp/replenishment/jobs"
)

var version = "dev"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:    "replenishment-worker",
		ServiceVersion: version,
		Endpoint:       cfg.OTelEndpoint,
		AuthHeader:     cfg.OTelAuthHeader,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		logger.Error("init tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ApplicationName: "replenishment-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var publisher picking.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		writer := picking.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaPickingTopic)
		kafkaPublisher := picking.NewKafkaPublisher(writer)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("kafka writer close", slog.Any("error", err))
			}
		}()
		publisher = kafkaPublisher
	}

	metrics := observability.NewMetrics()
	runMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	procurementRepo := procurement.NewRepository(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	runner := stockrule.NewService(stockrule.Deps{
		Forecast: inventory.NewForecastStore(inventory.NewRepository(pool), logger),
		History:  procurementRepo,
		Resolver: procurement.NewResolver(procurement.DefaultBuilder{}),
		Grouper:  picking.NewGrouper(cfg.MergePolicy()),
		Sink:     picking.NewService(picking.NewRepository(pool), publisher, logger),
		Identity: picking.SystemIdentity(cfg.SystemActorID),
		Locker:   lock.New(redisClient, cfg.LockOptions(), logger),
		Audit:    shared.NewAuditLogger(pool),
		Metrics:  runMetrics,
		Tracer:   tracing.Tracer("replenishment/stockrule"),
		Logger:   logger,
	})
	runJob := jobs.NewProcurementRunJob(procurement.NewService(procurementRepo), runner, idempotency, logger)
	janitor := &jobs.IdempotencyJanitor{Store: idempotency, Logger: logger, Metrics: runMetrics}

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskProcurementRun, Handler: runJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: janitor.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IdempotencyCron, Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	opsServer := &http.Server{
		Addr: cfg.WorkerOpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			JobHandler: jobs.NewHandler(inspector, logger),
			Metrics:    metrics,
		}),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting ops server", slog.String("addr", cfg.WorkerOpsAddr))
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return opsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
