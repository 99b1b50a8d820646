package valuation

import (
	"cmp"
	"slices"
	"strings"
)

// FilterOptions returns the options of param that apply to target, in their
// original order. Options with an empty value are never selectable.
func FilterOptions(param ParameterConfig, target Target) []ParameterOption {
	out := make([]ParameterOption, 0, len(param.Options))
	want := MotorTypeFor(target.Flameproof)
	for _, opt := range param.Options {
		if strings.TrimSpace(opt.Value) == "" {
			continue
		}
		if param.MotorTypeDependent && opt.MotorType != nil && *opt.MotorType != want {
			continue
		}
		if param.FrameSizeDependent && opt.FrameSize != nil {
			if target.FrameSize == nil || *opt.FrameSize != *target.FrameSize {
				continue
			}
		}
		out = append(out, opt)
	}
	return out
}

// FilterCatalog applies FilterOptions to every parameter of a catalog. Parameters
// are kept even when no option survives so callers can show them as unavailable.
func FilterCatalog(catalog []ParameterConfig, target Target) []ParameterConfig {
	out := make([]ParameterConfig, len(catalog))
	for i, param := range catalog {
		param.Options = FilterOptions(param, target)
		out[i] = param
	}
	return out
}

// OrderByCatalog returns sels arranged by the position of their parameter in
// catalog. Selections whose code is not in the catalog follow in input order.
func OrderByCatalog(catalog []ParameterConfig, sels []SelectedParameter) []SelectedParameter {
	pos := make(map[string]int, len(catalog))
	for i, param := range catalog {
		if _, ok := pos[param.Code]; !ok {
			pos[param.Code] = i
		}
	}
	out := slices.Clone(sels)
	slices.SortStableFunc(out, func(a, b SelectedParameter) int {
		return cmp.Compare(rank(pos, a.Code, len(catalog)), rank(pos, b.Code, len(catalog)))
	})
	return out
}

func rank(pos map[string]int, code string, missing int) int {
	if i, ok := pos[code]; ok {
		return i
	}
	return missing
}
