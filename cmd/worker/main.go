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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/AnumHasan/django/internal/app"
	"github.com/AnumHasan/django/internal/backends"
	jobmetrics "github.com/AnumHasan/django/internal/jobs"
	"github.com/AnumHasan/django/internal/observability"
	"github.com/AnumHasan/django/internal/platform/cache"
	"github.com/AnumHasan/django/internal/platform/db"
	"github.com/AnumHasan/django/internal/platform/httpx"
	"github.com/AnumHasan/django/internal/platform/mail"
	"github.com/AnumHasan/django/jobs"
)

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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := backends.NewPGStore(pool)
	permCache := backends.NewPermissionCache(backends.NewModelBackend(store), redisClient, cfg.PermCacheTTL)

	metrics := observability.NewMetrics()
	jm := jobmetrics.NewMetrics(metrics.Registerer())

	mailer := mail.New(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})

	mailJob := jobs.NewSendEmailJob(mailer, logger, jm)
	warmupJob := jobs.NewPermissionWarmupJob(pool, permCache, logger, jm)

	warmupTask, err := jobs.NewPermissionWarmupTask(0)
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskTypePermissionWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)
	router.Use(httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", "postgres unreachable")
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	router.Route("/jobs", jobs.NewHandler(inspector, logger).MountRoutes)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	server := &http.Server{
		Addr:        cfg.WorkerAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("starting ops server", slog.String("addr", cfg.WorkerAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
