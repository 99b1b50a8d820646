package brandconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/motor-valuation/internal/db"
	"github.com/noah-isme/motor-valuation/internal/valuation"
)

// Store returns the parameter catalog of a brand. The catalog is empty when the
// brand has no active configuration.
type Store interface {
	ActiveCatalog(ctx context.Context, brand string) ([]valuation.ParameterConfig, error)
}

// NormalizeBrand folds a brand name to the form used for lookups. Brands are
// matched case-insensitively by both the database and the cache.
func NormalizeBrand(brand string) string {
	return strings.ToLower(strings.TrimSpace(brand))
}

// MotorParameter is a master parameter definition shared by all brands.
type MotorParameter struct {
	Name        string `yaml:"name"`
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Active      *bool  `yaml:"is_active"`
}

// Configuration is the editable configuration of a single brand. ValuesJSON
// holds the <code>_values lists exactly as ParseValues reads them.
type Configuration struct {
	Brand      string
	Parameters []Parameter
	ValuesJSON json.RawMessage
}

// PGStore reads and writes brand configurations in Postgres.
type PGStore struct {
	DB db.Conn
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.Conn) *PGStore {
	return &PGStore{DB: conn}
}

const activeConfigSQL = `
SELECT id, values_json
FROM brand_motor_configurations
WHERE lower(brand) = $1 AND is_active`

const brandParametersSQL = `
SELECT bp.parameter, mp.code, bp.pricing_type, bp.motor_type_dependent, bp.frame_size_dependent
FROM brand_parameters bp
JOIN motor_parameters mp ON mp.name = bp.parameter
WHERE bp.config_id = $1 AND mp.is_active
ORDER BY bp.position`

// ActiveCatalog implements Store.
func (s *PGStore) ActiveCatalog(ctx context.Context, brand string) ([]valuation.ParameterConfig, error) {
	var (
		id  pgtype.UUID
		raw []byte
	)
	if err := s.DB.QueryRow(ctx, activeConfigSQL, NormalizeBrand(brand)).Scan(&id, &raw); err != nil {
		if db.IsNoRows(err) {
			return []valuation.ParameterConfig{}, nil
		}
		return nil, fmt.Errorf("load brand configuration: %w", err)
	}

	rows, err := s.DB.Query(ctx, brandParametersSQL, id)
	if err != nil {
		return nil, fmt.Errorf("load brand parameters: %w", err)
	}
	params, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Parameter, error) {
		var p Parameter
		err := row.Scan(&p.Name, &p.Code, &p.PricingType, &p.MotorTypeDependent, &p.FrameSizeDependent)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan brand parameters: %w", err)
	}

	values, err := ParseValues(raw)
	if err != nil {
		return nil, err
	}
	return BuildCatalog(params, values), nil
}

const upsertMotorParameterSQL = `
INSERT INTO motor_parameters (name, code, description, category, is_active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE
SET code = EXCLUDED.code, description = EXCLUDED.description,
    category = EXCLUDED.category, is_active = EXCLUDED.is_active`

// SaveMotorParameter inserts or updates a master parameter.
func (s *PGStore) SaveMotorParameter(ctx context.Context, p MotorParameter) error {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	category := p.Category
	if category == "" {
		category = "Other"
	}
	if _, err := s.DB.Exec(ctx, upsertMotorParameterSQL, p.Name, p.Code, p.Description, category, active); err != nil {
		return fmt.Errorf("save motor parameter %s: %w", p.Name, err)
	}
	return nil
}

const upsertConfigSQL = `
INSERT INTO brand_motor_configurations (brand, values_json)
VALUES ($1, $2)
ON CONFLICT (lower(brand)) WHERE is_active DO UPDATE
SET values_json = EXCLUDED.values_json, updated_at = now()
RETURNING id`

// Save writes the active configuration of a brand, replacing its parameter rows.
// There is at most one active configuration per brand.
func (s *PGStore) Save(ctx context.Context, cfg Configuration) error {
	raw := cfg.ValuesJSON
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if _, err := ParseValues(raw); err != nil {
		return err
	}

	return db.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		var id pgtype.UUID
		if err := tx.QueryRow(ctx, upsertConfigSQL, strings.TrimSpace(cfg.Brand), raw).Scan(&id); err != nil {
			return fmt.Errorf("save brand configuration: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM brand_parameters WHERE config_id = $1`, id); err != nil {
			return fmt.Errorf("clear brand parameters: %w", err)
		}
		batch := &pgx.Batch{}
		for i, p := range cfg.Parameters {
			batch.Queue(`
INSERT INTO brand_parameters (config_id, position, parameter, pricing_type, motor_type_dependent, frame_size_dependent)
VALUES ($1, $2, $3, $4, $5, $6)`, id, i, p.Name, p.PricingType, p.MotorTypeDependent, p.FrameSizeDependent)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save brand parameters: %w", err)
		}
		return nil
	})
}
