package valuation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PricingMode describes how a parameter option contributes to the price.
type PricingMode string

const (
	// ModePercentage adds PriceValue percent of the base price.
	ModePercentage PricingMode = "Percentage"
	// ModeFixedAmount adds PriceValue as an absolute amount.
	ModeFixedAmount PricingMode = "Fixed Amount"
	// ModeBoth adds PricePercent percent of the base price plus PriceAmount.
	ModeBoth PricingMode = "Both"
)

// ParsePricingMode maps a stored pricing type onto the closed set of modes.
func ParsePricingMode(raw string) (PricingMode, error) {
	switch strings.ToLower(strings.Join(strings.Fields(raw), " ")) {
	case "percentage", "percent":
		return ModePercentage, nil
	case "fixed amount", "fixed", "fixedamount", "fixed_amount":
		return ModeFixedAmount, nil
	case "both":
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("valuation: unknown pricing mode %q", raw)
	}
}

// Valid reports whether m is one of the known modes.
func (m PricingMode) Valid() bool {
	switch m {
	case ModePercentage, ModeFixedAmount, ModeBoth:
		return true
	}
	return false
}

// absolute reports whether the mode belongs to the absolute group.
func (m PricingMode) absolute() bool {
	return m == ModeFixedAmount || m == ModeBoth
}

// MotorType tags options that only apply to flameproof or standard motors.
type MotorType string

const (
	MotorTypeFLP    MotorType = "FLP"
	MotorTypeNonFLP MotorType = "Non-FLP"
)

// MotorTypeFor returns the motor type tag matching the flameproof flag.
func MotorTypeFor(flameproof bool) MotorType {
	if flameproof {
		return MotorTypeFLP
	}
	return MotorTypeNonFLP
}

// ParameterOption is one selectable value of a configuration parameter.
type ParameterOption struct {
	Value        string          `json:"value"`
	MotorType    *MotorType      `json:"motor_type,omitempty"`
	FrameSize    *int            `json:"frame_size,omitempty"`
	PriceValue   decimal.Decimal `json:"price"`
	PricePercent decimal.Decimal `json:"price_pct"`
	PriceAmount  decimal.Decimal `json:"price_amt"`
}

// ParameterConfig is one configurable parameter of a brand catalog.
type ParameterConfig struct {
	Code               string            `json:"code"`
	Name               string            `json:"name"`
	PricingMode        PricingMode       `json:"pricing_mode"`
	MotorTypeDependent bool              `json:"motor_type_dependent"`
	FrameSizeDependent bool              `json:"frame_size_dependent"`
	Options            []ParameterOption `json:"options"`
}

// Select builds the selection for value, or reports false when the value is not
// among the parameter options.
func (p ParameterConfig) Select(value string) (SelectedParameter, bool) {
	for _, opt := range p.Options {
		if opt.Value != value {
			continue
		}
		return SelectedParameter{
			Code:         p.Code,
			Name:         p.Name,
			PricingMode:  p.PricingMode,
			ChosenValue:  opt.Value,
			PriceValue:   opt.PriceValue,
			PricePercent: opt.PricePercent,
			PriceAmount:  opt.PriceAmount,
		}, true
	}
	return SelectedParameter{}, false
}

// SelectedParameter is the user's choice for one parameter on one item.
type SelectedParameter struct {
	Code         string          `json:"code"`
	Name         string          `json:"name,omitempty"`
	PricingMode  PricingMode     `json:"pricing_mode"`
	ChosenValue  string          `json:"chosen_value"`
	PriceValue   decimal.Decimal `json:"price_value"`
	PricePercent decimal.Decimal `json:"price_percent"`
	PriceAmount  decimal.Decimal `json:"price_amount"`
}

// Target describes the base item the options are filtered for.
type Target struct {
	Flameproof bool
	FrameSize  *int
}

// Valuation is the undiscounted outcome of Compute.
type Valuation struct {
	ItemCode       string          `json:"item_code"`
	ValuationPrice decimal.Decimal `json:"valuation_price"`
	// Ignored lists parameter codes whose pricing mode was not recognised.
	Ignored []string `json:"ignored,omitempty"`
}

// Discounted is the outcome of ApplyDiscount.
type Discounted struct {
	FinalPrice     decimal.Decimal `json:"final_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// Result combines a valuation with its discounted price.
type Result struct {
	ItemCode       string          `json:"item_code"`
	ValuationPrice decimal.Decimal `json:"valuation_price"`
	FinalPrice     decimal.Decimal `json:"final_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Ignored        []string        `json:"ignored,omitempty"`
}
