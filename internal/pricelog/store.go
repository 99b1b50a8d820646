package pricelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/motor-valuation/internal/db"
)

// Store appends and lists price log entries. Entries are never updated.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context, creationID string, limit, offset int) ([]Entry, error)
}

// PGStore persists entries in price_log_entries. Entry ids are ULIDs so the
// primary key orders entries by creation time.
type PGStore struct {
	DB    db.DBTX
	Now   func() time.Time
	NewID func() string
}

// NewPGStore constructs a PGStore over conn, which may be a pool or a transaction.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{DB: conn}
}

func (s *PGStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *PGStore) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return ulid.Make().String()
}

const appendSQL = `
INSERT INTO price_log_entries (
    id, creation_id, item_code, reference_doctype, reference_name, discount_stage,
    discount_percentage, discount_amount, valuation_price, final_price, created_by, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11, $12)`

// Append implements Store.
func (s *PGStore) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.CreationID == "" {
		return Entry{}, errors.New("price log entry requires a creation id")
	}
	e.ID = s.newID()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.DB.Exec(ctx, appendSQL,
		e.ID, e.CreationID, e.ItemCode, e.ReferenceDoctype, e.ReferenceName, e.DiscountStage,
		e.DiscountPercentage.String(), e.DiscountAmount.String(), e.ValuationPrice.String(), e.FinalPrice.String(),
		e.CreatedBy, e.CreatedAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append price log: %w", err)
	}
	return e, nil
}

const listSQL = `
SELECT id, creation_id::text, item_code, reference_doctype, reference_name, discount_stage,
       discount_percentage::text, discount_amount::text, valuation_price::text, final_price::text,
       created_by, created_at
FROM price_log_entries
WHERE creation_id = $1
ORDER BY id DESC
LIMIT $2 OFFSET $3`

// List implements Store, newest entry first.
func (s *PGStore) List(ctx context.Context, creationID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, listSQL, creationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list price logs: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan price logs: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e                          Entry
		pct, amount, valuation, fp string
	)
	if err := row.Scan(&e.ID, &e.CreationID, &e.ItemCode, &e.ReferenceDoctype, &e.ReferenceName, &e.DiscountStage,
		&pct, &amount, &valuation, &fp, &e.CreatedBy, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	var err error
	if e.DiscountPercentage, err = decimal.NewFromString(pct); err != nil {
		return Entry{}, err
	}
	if e.DiscountAmount, err = decimal.NewFromString(amount); err != nil {
		return Entry{}, err
	}
	if e.ValuationPrice, err = decimal.NewFromString(valuation); err != nil {
		return Entry{}, err
	}
	if e.FinalPrice, err = decimal.NewFromString(fp); err != nil {
		return Entry{}, err
	}
	return e, nil
}
