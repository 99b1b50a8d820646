// Package baseprice resolves the list price a non-standard motor is valued from.
package baseprice

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/motor-valuation/internal/db"
)

// Source returns the base price of an item. The price is zero when no price
// record exists.
type Source interface {
	BasePrice(ctx context.Context, itemCode, brand string) (decimal.Decimal, error)
}

// PGSource reads the most recent buying price of an item.
type PGSource struct {
	DB db.DBTX
	// PriceList restricts lookups to one buying price list when set.
	PriceList string
}

// The brand filter only applies when the item row carries a brand.
const latestBuyingPriceSQL = `
SELECT ip.price_list_rate::text
FROM item_prices ip
JOIN items i ON i.item_code = ip.item_code
WHERE ip.item_code = $1
  AND ip.buying
  AND ($2 = '' OR ip.price_list = $2)
  AND ($3 = '' OR i.brand = '' OR i.brand = $3)
ORDER BY ip.modified_at DESC, ip.id DESC
LIMIT 1`

// BasePrice implements Source.
func (s PGSource) BasePrice(ctx context.Context, itemCode, brand string) (decimal.Decimal, error) {
	var rate string
	err := s.DB.QueryRow(ctx, latestBuyingPriceSQL, itemCode, s.PriceList, brand).Scan(&rate)
	if err != nil {
		if db.IsNoRows(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("load base price for %s: %w", itemCode, err)
	}
	price, err := decimal.NewFromString(rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse base price %q: %w", rate, err)
	}
	return price, nil
}
