// Package nonstd prices, creates and re-discounts non-standard motor items.
package nonstd

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/motor-valuation/internal/pricelog"
	"github.com/noah-isme/motor-valuation/internal/valuation"
)

// Choice is the value picked for one parameter.
type Choice struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// Draft is an unsaved non-standard item as edited by the user.
type Draft struct {
	// Key identifies the editing session; previews of the same key are
	// sequenced so only the newest one is current.
	Key                string
	BaseItem           string
	Brand              string
	Choices            []Choice
	ApplyDiscountAfter string
	DiscountPercentage decimal.Decimal
	ReferenceDoctype   string
	ReferenceName      string
}

// Quote is a fully resolved draft: the base item attributes, the priced
// selections and the engine result.
type Quote struct {
	BaseItem           string                        `json:"base_item"`
	Brand              string                        `json:"brand"`
	ItemGroup          string                        `json:"item_group"`
	FrameSize          *int                          `json:"frame_size,omitempty"`
	Flameproof         bool                          `json:"is_flameproof"`
	BasePrice          decimal.Decimal               `json:"base_price"`
	Parameters         []valuation.SelectedParameter `json:"parameters"`
	DiscountStage      valuation.DiscountStage       `json:"apply_discount_after"`
	DiscountPercentage decimal.Decimal               `json:"discount_percentage"`
	Result             valuation.Result              `json:"result"`
	Description        string                        `json:"description"`
	Warnings           []string                      `json:"warnings,omitempty"`
	// Superseded is set when a newer preview of the same draft began while
	// this one was computed.
	Superseded         bool                          `json:"superseded,omitempty"`
}

// Record is a persisted non-standard item creation.
type Record struct {
	ID                 string                        `json:"id"`
	BaseItem           string                        `json:"base_item"`
	Brand              string                        `json:"brand"`
	ItemGroup          string                        `json:"item_group"`
	FrameSize          *int                          `json:"frame_size,omitempty"`
	Flameproof         bool                          `json:"is_flameproof"`
	BasePrice          decimal.Decimal               `json:"base_price"`
	ApplyDiscountAfter valuation.DiscountStage       `json:"apply_discount_after"`
	DiscountPercentage decimal.Decimal               `json:"discount_percentage"`
	ItemCode           string                        `json:"new_item_code"`
	ValuationPrice     decimal.Decimal               `json:"valuation_price"`
	Description        string                        `json:"description"`
	CreatedBy          string                        `json:"created_by"`
	Parameters         []valuation.SelectedParameter `json:"parameters"`
	CreatedAt          time.Time                     `json:"created_at"`
	UpdatedAt          time.Time                     `json:"updated_at"`
}

// Created is the outcome of Service.Create.
type Created struct {
	Record   Record         `json:"record"`
	PriceLog pricelog.Entry `json:"price_log"`
	Warnings []string       `json:"warnings,omitempty"`
}

// DiscountUpdate re-prices a created item at a new discount.
type DiscountUpdate struct {
	ApplyDiscountAfter string
	DiscountPercentage decimal.Decimal
	ReferenceDoctype   string
	ReferenceName      string
}

// DiscountOutcome is the outcome of Service.UpdateDiscount.
type DiscountOutcome struct {
	OldPrice       decimal.Decimal `json:"old_price"`
	NewPrice       decimal.Decimal `json:"new_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Message        string          `json:"message"`
	PriceLog       pricelog.Entry  `json:"price_log"`
}

// CatalogView is a brand catalog filtered for one base item.
type CatalogView struct {
	Brand      string                      `json:"brand"`
	BaseItem   string                      `json:"base_item"`
	FrameSize  *int                        `json:"frame_size,omitempty"`
	Flameproof bool                        `json:"is_flameproof"`
	Parameters []valuation.ParameterConfig `json:"parameters"`
	Warnings   []string                    `json:"warnings,omitempty"`
}

// PriceLogView adds display fields to a price log entry.
type PriceLogView struct {
	pricelog.Entry
	Reference string `json:"reference"`
	Creator   string `json:"creator"`
}
