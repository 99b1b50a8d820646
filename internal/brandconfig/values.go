// Package brandconfig loads the per-brand parameter catalog used to price
// non-standard motors.
package brandconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/motor-valuation/internal/valuation"
)

// valuesSuffix is appended to a parameter code to find its options in values_json.
const valuesSuffix = "_values"

// Parameter is one parameter row attached to a brand configuration.
type Parameter struct {
	Name               string `json:"name" yaml:"name"`
	Code               string `json:"code" yaml:"code"`
	PricingType        string `json:"pricing_type" yaml:"pricing_type"`
	MotorTypeDependent bool   `json:"motor_type_dependent" yaml:"motor_type_dependent"`
	FrameSizeDependent bool   `json:"frame_size_dependent" yaml:"frame_size_dependent"`
}

// Values maps a parameter code to its configured options.
type Values map[string][]valuation.ParameterOption

// rawOption mirrors one entry of a <code>_values list. Numbers may arrive as
// JSON numbers or strings depending on the editor that saved them.
type rawOption struct {
	Value     json.RawMessage `json:"value"`
	MotorType *string         `json:"motor_type"`
	FrameSize json.RawMessage `json:"frame_size"`
	Price     json.RawMessage `json:"price"`
	PricePct  json.RawMessage `json:"price_pct"`
	PriceAmt  json.RawMessage `json:"price_amt"`
}

// ParseValues decodes a stored values_json document. Entries that are not
// objects or have no value are skipped, as are keys that are not lists.
func ParseValues(raw []byte) (Values, error) {
	out := Values{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode values_json: %w", err)
	}
	for key, list := range doc {
		code, ok := strings.CutSuffix(key, valuesSuffix)
		if !ok || code == "" {
			continue
		}
		var entries []json.RawMessage
		if err := json.Unmarshal(list, &entries); err != nil {
			continue
		}
		opts := make([]valuation.ParameterOption, 0, len(entries))
		for _, entry := range entries {
			opt, ok := parseOption(entry)
			if ok {
				opts = append(opts, opt)
			}
		}
		out[code] = opts
	}
	return out, nil
}

func parseOption(entry json.RawMessage) (valuation.ParameterOption, bool) {
	var ro rawOption
	if err := json.Unmarshal(entry, &ro); err != nil {
		return valuation.ParameterOption{}, false
	}
	value, ok := scalarString(ro.Value)
	if !ok {
		return valuation.ParameterOption{}, false
	}
	opt := valuation.ParameterOption{
		Value:        value,
		PriceValue:   number(ro.Price),
		PricePercent: number(ro.PricePct),
		PriceAmount:  number(ro.PriceAmt),
	}
	if ro.MotorType != nil && strings.TrimSpace(*ro.MotorType) != "" {
		mt := valuation.MotorType(strings.TrimSpace(*ro.MotorType))
		opt.MotorType = &mt
	}
	if s, ok := scalarString(ro.FrameSize); ok {
		if n, err := strconv.Atoi(s); err == nil {
			opt.FrameSize = &n
		}
	}
	return opt, true
}

// scalarString renders a JSON string or number as text.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// number decodes a price field, treating missing or malformed values as zero.
func number(raw json.RawMessage) decimal.Decimal {
	s, ok := scalarString(raw)
	if !ok || s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// BuildCatalog joins the parameter rows of a configuration with their options.
// A pricing type that is empty or unrecognised is kept verbatim so the engine
// reports the parameter instead of pricing it.
func BuildCatalog(params []Parameter, values Values) []valuation.ParameterConfig {
	out := make([]valuation.ParameterConfig, 0, len(params))
	for _, p := range params {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			continue
		}
		mode, err := valuation.ParsePricingMode(p.PricingType)
		if err != nil {
			mode = valuation.PricingMode(strings.TrimSpace(p.PricingType))
		}
		name := p.Name
		if name == "" {
			name = code
		}
		out = append(out, valuation.ParameterConfig{
			Code:               code,
			Name:               name,
			PricingMode:        mode,
			MotorTypeDependent: p.MotorTypeDependent,
			FrameSizeDependent: p.FrameSizeDependent,
			Options:            values[code],
		})
	}
	return out
}
