// Package items maintains the ERP item master that derived motor codes are
// materialised into.
package items

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/motor-valuation/internal/db"
)

// ErrNotFound is returned when an item code does not exist.
var ErrNotFound = errors.New("items: item not found")

// ErrExists is returned by Create when the item code is taken.
var ErrExists = errors.New("items: item already exists")

// Item is one row of the item master.
type Item struct {
	Code          string          `json:"item_code" yaml:"item_code"`
	Name          string          `json:"item_name" yaml:"item_name"`
	Group         string          `json:"item_group" yaml:"item_group"`
	Brand         string          `json:"brand" yaml:"brand"`
	FrameSize     *int            `json:"frame_size,omitempty" yaml:"frame_size"`
	Flameproof    bool            `json:"is_flameproof" yaml:"is_flameproof"`
	NonStandard   bool            `json:"is_non_standard" yaml:"is_non_standard"`
	StockUOM      string          `json:"stock_uom" yaml:"stock_uom"`
	ValuationRate decimal.Decimal `json:"valuation_rate" yaml:"valuation_rate"`
	HSNCode       string          `json:"hsn_code" yaml:"hsn_code"`
	Description   string          `json:"description" yaml:"description"`
}

// Store reads and creates items.
type Store interface {
	Get(ctx context.Context, code string) (Item, error)
	Exists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, it Item) error
}

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	DB db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{DB: conn}
}

const getItemSQL = `
SELECT item_code, item_name, item_group, brand, frame_size, is_flameproof, is_non_standard,
       stock_uom, valuation_rate::text, hsn_code, description
FROM items
WHERE item_code = $1`

// Get implements Store.
func (s *PGStore) Get(ctx context.Context, code string) (Item, error) {
	var (
		it    Item
		frame pgtype.Int4
		rate  string
	)
	err := s.DB.QueryRow(ctx, getItemSQL, code).Scan(
		&it.Code, &it.Name, &it.Group, &it.Brand, &frame, &it.Flameproof, &it.NonStandard,
		&it.StockUOM, &rate, &it.HSNCode, &it.Description,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("load item %s: %w", code, err)
	}
	if frame.Valid {
		n := int(frame.Int32)
		it.FrameSize = &n
	}
	if it.ValuationRate, err = decimal.NewFromString(rate); err != nil {
		return Item{}, fmt.Errorf("parse valuation rate %q: %w", rate, err)
	}
	return it, nil
}

// Exists implements Store.
func (s *PGStore) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE item_code = $1)`, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("check item %s: %w", code, err)
	}
	return exists, nil
}

const insertItemSQL = `
INSERT INTO items (item_code, item_name, item_group, brand, frame_size, is_flameproof, is_non_standard,
                   stock_uom, valuation_rate, hsn_code, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11)`

// Create implements Store.
func (s *PGStore) Create(ctx context.Context, it Item) error {
	var frame pgtype.Int4
	if it.FrameSize != nil {
		frame = pgtype.Int4{Int32: int32(*it.FrameSize), Valid: true}
	}
	_, err := s.DB.Exec(ctx, insertItemSQL,
		it.Code, it.Name, it.Group, it.Brand, frame, it.Flameproof, it.NonStandard,
		it.StockUOM, it.ValuationRate.String(), it.HSNCode, it.Description,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("create item %s: %w", it.Code, err)
	}
	return nil
}

const insertPriceSQL = `
INSERT INTO item_prices (item_code, price_list, buying, selling, price_list_rate)
VALUES ($1, $2, $3, $4, $5::numeric)`

// Price is one price list entry of an item.
type Price struct {
	ItemCode  string          `yaml:"item_code"`
	PriceList string          `yaml:"price_list"`
	Buying    bool            `yaml:"buying"`
	Selling   bool            `yaml:"selling"`
	Rate      decimal.Decimal `yaml:"rate"`
}

// AddPrice records a new price for an item. Older prices stay; readers pick the latest.
func (s *PGStore) AddPrice(ctx context.Context, p Price) error {
	if _, err := s.DB.Exec(ctx, insertPriceSQL, p.ItemCode, p.PriceList, p.Buying, p.Selling, p.Rate.String()); err != nil {
		return fmt.Errorf("add price for %s: %w", p.ItemCode, err)
	}
	return nil
}
