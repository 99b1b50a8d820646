// Package app holds the process wiring shared by the api, worker and seeder binaries.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/motor-valuation/internal/config"
	"github.com/noah-isme/motor-valuation/internal/db"
	"github.com/noah-isme/motor-valuation/internal/obs"
)

// Logger builds the process logger tagged with env and component.
func Logger(cfg *config.Config, component string) zerolog.Logger {
	return obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", component).
		Logger()
}

// InitTracing starts the tracer provider when enabled. The returned shutdown
// func is never nil.
func InitTracing(ctx context.Context, cfg *config.Config, service string, logger zerolog.Logger) (bool, func(context.Context) error) {
	noop := func(context.Context) error { return nil }
	if !cfg.TracingEnabled {
		return false, noop
	}
	shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   service,
		Endpoint:      cfg.OTLPEndpoint,
		Exporter:      cfg.TracingExporter,
		SamplingRatio: cfg.TracingSamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		return false, noop
	}
	return true, shutdown
}

// NewPool opens the Postgres pool with query tracing and verifies it.
func NewPool(ctx context.Context, cfg *config.Config, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis connects the shared Redis client. Instrumentation failures are
// logged and do not stop startup.
func NewRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TaskRedis returns the asynq connection options for the configured Redis.
func TaskRedis(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	return opt, nil
}

// RunMigrations applies pending migrations when auto migration is enabled.
func RunMigrations(cfg *config.Config, logger zerolog.Logger) error {
	if !cfg.MigrationsAuto {
		return nil
	}
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if version, dirty, err := db.Version(cfg.DatabaseURL); err == nil {
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations applied")
	}
	return nil
}
