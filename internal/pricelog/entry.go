// Package pricelog keeps the append-only history of prices quoted for a
// non-standard item.
package pricelog

import (
	"time"

	"github.com/shopspring/decimal"
)

// DirectCreation is shown as the reference of entries that were not raised from another document.
const DirectCreation = "Direct Creation"

// Entry is one immutable price log record.
type Entry struct {
	ID                 string          `json:"id"`
	CreationID         string          `json:"creation_id"`
	ItemCode           string          `json:"item_code"`
	ReferenceDoctype   string          `json:"reference_doctype,omitempty"`
	ReferenceName      string          `json:"reference_name,omitempty"`
	DiscountStage      string          `json:"discount_stage"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	ValuationPrice     decimal.Decimal `json:"valuation_price"`
	FinalPrice         decimal.Decimal `json:"final_price"`
	CreatedBy          string          `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Reference describes the document an entry was raised from.
func (e Entry) Reference() string {
	if e.ReferenceDoctype == "" || e.ReferenceName == "" {
		return DirectCreation
	}
	return e.ReferenceDoctype + ": " + e.ReferenceName
}

// Creator returns the user that raised the entry, or "System".
func (e Entry) Creator() string {
	if e.CreatedBy == "" {
		return "System"
	}
	return e.CreatedBy
}
