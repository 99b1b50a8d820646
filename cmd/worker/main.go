package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/motor-valuation/internal/app"
	"github.com/noah-isme/motor-valuation/internal/config"
	"github.com/noah-isme/motor-valuation/internal/items"
	"github.com/noah-isme/motor-valuation/internal/obs"
)

const serviceName = "motor-valuation-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.Logger(cfg, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	}
	_, shutdownTracer := app.InitTracing(ctx, cfg, serviceName, logger)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := app.NewPool(startCtx, cfg, serviceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise database")
	}
	defer pool.Close()

	taskRedis, err := app.TaskRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise task queue")
	}

	materializer := items.Materializer{
		Store:      items.NewPGStore(pool),
		DefaultUOM: cfg.ItemDefaultUOM,
		Logger:     &logger,
	}
	mux := asynq.NewServeMux()
	mux.HandleFunc(items.TypeMaterialize, materializer.ProcessTask)

	srv := asynq.NewServer(taskRedis, asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Logger:      asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
