package nonstd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/motor-valuation/internal/db"
	"github.com/noah-isme/motor-valuation/internal/events"
	"github.com/noah-isme/motor-valuation/internal/pricelog"
	"github.com/noah-isme/motor-valuation/internal/valuation"
)

var (
	// ErrRecordNotFound is returned when a creation record does not exist.
	ErrRecordNotFound = errors.New("nonstd: record not found")
	// ErrDuplicateCode is returned when the derived item code is already recorded.
	ErrDuplicateCode = errors.New("nonstd: item code already recorded")
)

// Repository loads creation records and runs writes atomically.
type Repository interface {
	Get(ctx context.Context, id string) (Record, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of writes performed inside one transaction.
type Tx interface {
	ItemCodeTaken(ctx context.Context, code string) (bool, error)
	InsertRecord(ctx context.Context, rec Record) error
	LockRecord(ctx context.Context, id string) (Record, error)
	UpdateDiscount(ctx context.Context, id string, stage valuation.DiscountStage, at time.Time) error
	AppendPriceLog(ctx context.Context, e pricelog.Entry) (pricelog.Entry, error)
	Emit(ctx context.Context, topic, aggregateID string, payload any) error
}

// PGRepository stores creation records in Postgres. Price log entries and
// domain events written through a Tx share its transaction.
type PGRepository struct {
	DB  db.Conn
	Bus *events.Bus
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(conn db.Conn, bus *events.Bus) *PGRepository {
	return &PGRepository{DB: conn, Bus: bus}
}

// Get implements Repository.
func (r *PGRepository) Get(ctx context.Context, id string) (Record, error) {
	return loadRecord(ctx, r.DB, id, false)
}

// InTx implements Repository.
func (r *PGRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	return db.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		bus := &events.Bus{}
		if r.Bus != nil {
			bus = r.Bus
		}
		return fn(&pgTx{
			tx:   tx,
			logs: pricelog.NewPGStore(tx),
			bus:  bus.WithStore(events.NewPGStore(tx)),
		})
	})
}

type pgTx struct {
	tx   db.DBTX
	logs *pricelog.PGStore
	bus  *events.Bus
}

const itemCodeTakenSQL = `
SELECT EXISTS (SELECT 1 FROM nonstandard_items WHERE new_item_code = $1)
    OR EXISTS (SELECT 1 FROM items WHERE item_code = $1)`

func (t *pgTx) ItemCodeTaken(ctx context.Context, code string) (bool, error) {
	var taken bool
	if err := t.tx.QueryRow(ctx, itemCodeTakenSQL, code).Scan(&taken); err != nil {
		return false, fmt.Errorf("check item code %s: %w", code, err)
	}
	return taken, nil
}

const insertRecordSQL = `
INSERT INTO nonstandard_items (
    id, base_item, brand, item_group, frame_size, is_flameproof, base_price, apply_discount_after,
    discount_percentage, new_item_code, valuation_price, description, created_by,
    created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9::numeric, $10, $11::numeric, $12, $13, $14, $15)`

const insertParameterSQL = `
INSERT INTO nonstandard_item_parameters (
    creation_id, position, code, name, pricing_mode, chosen_value, price_value, price_percent, price_amount
) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric)`

func frameParam(n *int) pgtype.Int4 {
	if n == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*n), Valid: true}
}

func (t *pgTx) InsertRecord(ctx context.Context, rec Record) error {
	_, err := t.tx.Exec(ctx, insertRecordSQL,
		rec.ID, rec.BaseItem, rec.Brand, rec.ItemGroup, frameParam(rec.FrameSize), rec.Flameproof,
		rec.BasePrice.String(), string(rec.ApplyDiscountAfter), rec.DiscountPercentage.String(), rec.ItemCode,
		rec.ValuationPrice.String(), rec.Description, rec.CreatedBy,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert non-standard item: %w", err)
	}
	for i, p := range rec.Parameters {
		_, err := t.tx.Exec(ctx, insertParameterSQL,
			rec.ID, i, p.Code, p.Name, string(p.PricingMode), p.ChosenValue,
			p.PriceValue.String(), p.PricePercent.String(), p.PriceAmount.String(),
		)
		if err != nil {
			return fmt.Errorf("insert parameter %s: %w", p.Code, err)
		}
	}
	return nil
}

func (t *pgTx) LockRecord(ctx context.Context, id string) (Record, error) {
	return loadRecord(ctx, t.tx, id, true)
}

const updateDiscountSQL = `
UPDATE nonstandard_items
SET apply_discount_after = $2, updated_at = $3
WHERE id = $1`

func (t *pgTx) UpdateDiscount(ctx context.Context, id string, stage valuation.DiscountStage, at time.Time) error {
	tag, err := t.tx.Exec(ctx, updateDiscountSQL, id, string(stage), at)
	if err != nil {
		return fmt.Errorf("update discount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (t *pgTx) AppendPriceLog(ctx context.Context, e pricelog.Entry) (pricelog.Entry, error) {
	return t.logs.Append(ctx, e)
}

func (t *pgTx) Emit(ctx context.Context, topic, aggregateID string, payload any) error {
	_, err := t.bus.Emit(ctx, topic, aggregateID, payload)
	return err
}

const selectRecordSQL = `
SELECT id::text, base_item, brand, item_group, frame_size, is_flameproof, base_price::text,
       apply_discount_after, discount_percentage::text, new_item_code, valuation_price::text,
       description, created_by, created_at, updated_at
FROM nonstandard_items
WHERE id = $1`

const selectParametersSQL = `
SELECT code, name, pricing_mode, chosen_value, price_value::text, price_percent::text, price_amount::text
FROM nonstandard_item_parameters
WHERE creation_id = $1
ORDER BY position`

func loadRecord(ctx context.Context, conn db.DBTX, id string, forUpdate bool) (Record, error) {
	query := selectRecordSQL
	if forUpdate {
		query += " FOR UPDATE"
	}
	var (
		rec                            Record
		frame                          pgtype.Int4
		stage                          string
		basePrice, pct, valuationPrice string
	)
	err := conn.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.BaseItem, &rec.Brand, &rec.ItemGroup, &frame, &rec.Flameproof, &basePrice,
		&stage, &pct, &rec.ItemCode, &valuationPrice, &rec.Description, &rec.CreatedBy,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("load non-standard item: %w", err)
	}
	if frame.Valid {
		n := int(frame.Int32)
		rec.FrameSize = &n
	}
	rec.ApplyDiscountAfter = valuation.DiscountStage(stage)
	if err := parseDecimals(
		decimalField{basePrice, &rec.BasePrice},
		decimalField{pct, &rec.DiscountPercentage},
		decimalField{valuationPrice, &rec.ValuationPrice},
	); err != nil {
		return Record{}, err
	}

	rows, err := conn.Query(ctx, selectParametersSQL, id)
	if err != nil {
		return Record{}, fmt.Errorf("load parameters: %w", err)
	}
	rec.Parameters, err = pgx.CollectRows(rows, scanParameter)
	if err != nil {
		return Record{}, fmt.Errorf("scan parameters: %w", err)
	}
	return rec, nil
}

func scanParameter(row pgx.CollectableRow) (valuation.SelectedParameter, error) {
	var (
		p                  valuation.SelectedParameter
		mode               string
		value, pct, amount string
	)
	if err := row.Scan(&p.Code, &p.Name, &mode, &p.ChosenValue, &value, &pct, &amount); err != nil {
		return p, err
	}
	p.PricingMode = valuation.PricingMode(mode)
	err := parseDecimals(
		decimalField{value, &p.PriceValue},
		decimalField{pct, &p.PricePercent},
		decimalField{amount, &p.PriceAmount},
	)
	return p, err
}

type decimalField struct {
	raw string
	dst *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
