package valuation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencySymbol prefixes every amount in a breakdown.
const CurrencySymbol = "₹"

// FormatAmount renders d with two decimals and thousands grouping. The digits
// come from the decimal itself so large amounts keep every cent.
func FormatAmount(d decimal.Decimal) string {
	digits := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	whole, frac, _ := strings.Cut(digits, ".")
	return sign + CurrencySymbol + groupThousands(whole) + "." + frac
}

func groupThousands(whole string) string {
	if len(whole) <= 3 {
		return whole
	}
	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	return b.String()
}

// Describe renders the zero-discount price breakdown stored with a creation record.
func Describe(basePrice decimal.Decimal, selections []SelectedParameter) string {
	g := partition(selections)
	v := Compute("", basePrice, selections)

	lines := []string{"Base Price: " + FormatAmount(basePrice)}
	for _, sel := range g.percentage {
		inc := contribution(basePrice, sel)
		pct := sel.PriceValue
		if pct.IsZero() {
			pct = sel.PricePercent
		}
		lines = append(lines, label(sel)+" "+pct.String()+"% - "+FormatAmount(inc))
	}
	lines = append(lines, "Discount 0%")
	for _, sel := range g.absolute {
		inc := contribution(basePrice, sel)
		if sel.PricingMode == ModeBoth {
			lines = append(lines, label(sel)+" "+sel.PricePercent.String()+"% + "+FormatAmount(sel.PriceAmount)+" - "+FormatAmount(inc))
			continue
		}
		lines = append(lines, label(sel)+" "+FormatAmount(inc))
	}
	return strings.Join(lines, "\n") + "\n\nFinal Price (Zero Discount): " + FormatAmount(v.ValuationPrice)
}

func label(sel SelectedParameter) string {
	if name := strings.TrimSpace(sel.Name); name != "" {
		return name
	}
	return sel.Code
}
