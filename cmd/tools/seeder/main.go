// Command seeder loads motor parameter masters, brand configurations, base
// items and their buying prices from a YAML fixture file.
package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/motor-valuation/internal/brandconfig"
	"github.com/noah-isme/motor-valuation/internal/db"
	"github.com/noah-isme/motor-valuation/internal/items"
	"github.com/noah-isme/motor-valuation/internal/obs"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type brandFixture struct {
	Brand      string                  `yaml:"brand"`
	Parameters []brandconfig.Parameter `yaml:"parameters"`
	Values     map[string]any          `yaml:"values"`
}

type fixtures struct {
	MotorParameters []brandconfig.MotorParameter `yaml:"motor_parameters"`
	Brands          []brandFixture               `yaml:"brands"`
	Items           []items.Item                 `yaml:"items"`
	Prices          []items.Price                `yaml:"prices"`
}

func loadFixtures(r io.Reader) (fixtures, error) {
	var f fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}
	return f, nil
}

// configuration converts a brand fixture to the stored form, checking that
// its values parse the way the valuation reads them.
func (b brandFixture) configuration() (brandconfig.Configuration, error) {
	raw, err := json.Marshal(b.Values)
	if err != nil {
		return brandconfig.Configuration{}, fmt.Errorf("encode %s values: %w", b.Brand, err)
	}
	if b.Values == nil {
		raw = []byte(`{}`)
	}
	if _, err := brandconfig.ParseValues(raw); err != nil {
		return brandconfig.Configuration{}, fmt.Errorf("%s values: %w", b.Brand, err)
	}
	return brandconfig.Configuration{Brand: b.Brand, Parameters: b.Parameters, ValuesJSON: raw}, nil
}

type seeder struct {
	configs *brandconfig.PGStore
	items   *items.PGStore
	cache   *brandconfig.CachedStore
	logger  zerolog.Logger
}

func (s seeder) run(ctx context.Context, f fixtures) error {
	for _, p := range f.MotorParameters {
		if err := s.configs.SaveMotorParameter(ctx, p); err != nil {
			return err
		}
	}
	s.logger.Info().Int("count", len(f.MotorParameters)).Msg("motor parameters seeded")

	for _, b := range f.Brands {
		cfg, err := b.configuration()
		if err != nil {
			return err
		}
		if err := s.configs.Save(ctx, cfg); err != nil {
			return err
		}
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, b.Brand); err != nil {
				s.logger.Warn().Err(err).Str("brand", b.Brand).Msg("invalidate brand cache")
			}
		}
	}
	s.logger.Info().Int("count", len(f.Brands)).Msg("brand configurations seeded")

	created := 0
	for _, it := range f.Items {
		err := s.items.Create(ctx, it)
		switch {
		case errors.Is(err, items.ErrExists):
			s.logger.Debug().Str("item_code", it.Code).Msg("item already present")
		case err != nil:
			return err
		default:
			created++
		}
	}
	s.logger.Info().Int("created", created).Int("total", len(f.Items)).Msg("items seeded")

	for _, p := range f.Prices {
		if err := s.items.AddPrice(ctx, p); err != nil {
			return err
		}
	}
	s.logger.Info().Int("count", len(f.Prices)).Msg("prices seeded")
	return nil
}

func main() {
	path := flag.String("fixtures", "", "fixture file (defaults to the bundled sample data)")
	skipMigrate := flag.Bool("skip-migrate", false, "do not apply migrations before seeding")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger(os.Getenv("OBS_LOG_FORMAT"), os.Getenv("OBS_LOG_LEVEL")).With().Str("component", "seeder").Logger()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	var src io.Reader
	if *path == "" {
		src = bytes.NewReader(defaultFixtures)
	} else {
		file, err := os.Open(*path)
		if err != nil {
			logger.Fatal().Err(err).Msg("open fixtures")
		}
		defer file.Close()
		src = file
	}
	f, err := loadFixtures(src)
	if err != nil {
		logger.Fatal().Err(err).Msg("load fixtures")
	}

	if !*skipMigrate {
		if err := db.Migrate(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	configs := brandconfig.NewPGStore(pool)
	s := seeder{configs: configs, items: items.NewPGStore(pool), logger: logger}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		s.cache = brandconfig.NewCachedStore(configs, client, 0, &logger)
	}

	if err := s.run(ctx, f); err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	logger.Info().Msg("seeding completed")
}
