package valuation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrDiscountOutOfRange is returned when the discount percentage is outside [0,100].
	ErrDiscountOutOfRange = errors.New("valuation: discount percentage must be between 0 and 100")
	// ErrUnknownDiscountStage is returned for an unrecognised apply-discount-after value.
	ErrUnknownDiscountStage = errors.New("valuation: unknown discount stage")
)

var hundred = decimal.NewFromInt(100)

// DiscountStage selects the point of the accumulation at which a discount applies.
type DiscountStage string

const (
	// StageNone applies no discount.
	StageNone DiscountStage = ""
	// StageAfterPercentage discounts the base plus percentage contributions,
	// absolute contributions are added on top afterwards.
	StageAfterPercentage DiscountStage = "Percentage Values"
	// StageAfterAbsolute discounts the full accumulated total.
	StageAfterAbsolute DiscountStage = "Absolute Amount"
)

// ParseDiscountStage maps the stored apply-discount-after value onto a stage.
func ParseDiscountStage(raw string) (DiscountStage, error) {
	switch strings.ToLower(strings.Join(strings.Fields(raw), " ")) {
	case "", "none":
		return StageNone, nil
	case "percentage values", "percentage", "after_percentage":
		return StageAfterPercentage, nil
	case "absolute amount", "absolute", "after_absolute":
		return StageAfterAbsolute, nil
	default:
		return StageNone, fmt.Errorf("%w: %q", ErrUnknownDiscountStage, raw)
	}
}

// groups holds selections split by pricing group, each in input order.
type groups struct {
	percentage []SelectedParameter
	absolute   []SelectedParameter
	ignored    []string
}

// partition splits selections into the percentage and absolute groups. Callers
// pass selections in catalog order; see OrderByCatalog.
func partition(selections []SelectedParameter) groups {
	var g groups
	for _, sel := range selections {
		switch {
		case sel.PricingMode == ModePercentage:
			g.percentage = append(g.percentage, sel)
		case sel.PricingMode.absolute():
			g.absolute = append(g.absolute, sel)
		default:
			g.ignored = append(g.ignored, sel.Code)
		}
	}
	return g
}

// percentOf returns base * pct / 100.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// contribution returns the price increment of a selection against the base price.
func contribution(base decimal.Decimal, sel SelectedParameter) decimal.Decimal {
	switch sel.PricingMode {
	case ModePercentage:
		pct := sel.PriceValue
		if pct.IsZero() {
			pct = sel.PricePercent
		}
		return percentOf(base, pct)
	case ModeFixedAmount:
		if sel.PriceValue.IsZero() {
			return sel.PriceAmount
		}
		return sel.PriceValue
	case ModeBoth:
		return percentOf(base, sel.PricePercent).Add(sel.PriceAmount)
	default:
		return decimal.Zero
	}
}

func sum(base decimal.Decimal, sels []SelectedParameter) decimal.Decimal {
	total := decimal.Zero
	for _, sel := range sels {
		total = total.Add(contribution(base, sel))
	}
	return total
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Compute derives the valuation price and item code for a base item and a set of
// selected parameters. Percentage contributions are always taken against the
// original base price. Selections with an unknown pricing mode add nothing and
// are reported in Valuation.Ignored.
func Compute(baseItemCode string, basePrice decimal.Decimal, selections []SelectedParameter) Valuation {
	g := partition(selections)
	total := basePrice.Add(sum(basePrice, g.percentage)).Add(sum(basePrice, g.absolute))

	parts := []string{baseItemCode}
	for _, group := range [][]SelectedParameter{g.percentage, g.absolute} {
		for _, sel := range group {
			if strings.TrimSpace(sel.ChosenValue) == "" {
				continue
			}
			parts = append(parts, sel.Code+"-"+sel.ChosenValue)
		}
	}

	return Valuation{
		ItemCode:       strings.Join(parts, "_"),
		ValuationPrice: nonNegative(total).Round(2),
		Ignored:        g.ignored,
	}
}

// ApplyDiscount computes the negotiated price for the given discount stage. The
// valuation price is returned untouched as the final price when no discount applies.
func ApplyDiscount(basePrice decimal.Decimal, selections []SelectedParameter, valuationPrice decimal.Decimal, stage DiscountStage, discountPct decimal.Decimal) (Discounted, error) {
	if discountPct.IsNegative() || discountPct.GreaterThan(hundred) {
		return Discounted{}, ErrDiscountOutOfRange
	}
	switch stage {
	case StageNone, StageAfterPercentage, StageAfterAbsolute:
	default:
		return Discounted{}, fmt.Errorf("%w: %q", ErrUnknownDiscountStage, string(stage))
	}
	if stage == StageNone || discountPct.IsZero() {
		return Discounted{FinalPrice: valuationPrice, DiscountAmount: decimal.Zero}, nil
	}

	g := partition(selections)
	running := basePrice.Add(sum(basePrice, g.percentage))
	absolute := sum(basePrice, g.absolute)

	var final, discount decimal.Decimal
	switch stage {
	case StageAfterPercentage:
		discount = percentOf(running, discountPct).Round(2)
		final = running.Sub(discount).Add(absolute)
	case StageAfterAbsolute:
		running = running.Add(absolute)
		discount = percentOf(running, discountPct).Round(2)
		final = running.Sub(discount)
	}
	return Discounted{
		FinalPrice:     nonNegative(final).Round(2),
		DiscountAmount: discount,
	}, nil
}

// Evaluate runs Compute followed by ApplyDiscount.
func Evaluate(baseItemCode string, basePrice decimal.Decimal, selections []SelectedParameter, stage DiscountStage, discountPct decimal.Decimal) (Result, error) {
	v := Compute(baseItemCode, basePrice, selections)
	d, err := ApplyDiscount(basePrice, selections, v.ValuationPrice, stage, discountPct)
	if err != nil {
		return Result{}, err
	}
	return Result{
		ItemCode:       v.ItemCode,
		ValuationPrice: v.ValuationPrice,
		FinalPrice:     d.FinalPrice,
		DiscountAmount: d.DiscountAmount,
		Ignored:        v.Ignored,
	}, nil
}
