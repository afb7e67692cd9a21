package services

import (
	"sort"

	"commodities/domain/core/entities"
)

// ComputeBalances folds import and export rows into one summary per
// (country, year). The result is sorted by country then year and depends only
// on its inputs, so recomputation replaces earlier summaries wholesale.
func ComputeBalances(imports, exports []entities.TradeFact) []entities.BalanceSummary {
	byKey := make(map[entities.CountryYear]*entities.BalanceSummary)

	summary := func(k entities.FactKey) *entities.BalanceSummary {
		id := entities.CountryYear{Country: k.Country, Year: k.Year}
		s, ok := byKey[id]
		if !ok {
			s = entities.NewBalanceSummary(k.Country, k.Year)
			byKey[id] = s
		}
		return s
	}

	for _, t := range imports {
		s := summary(t.Key)
		s.TotalImports = s.TotalImports.Add(t.Amount)
		if prev, ok := s.CommodityImports[t.Key.Commodity]; ok {
			s.CommodityImports[t.Key.Commodity] = prev.Add(t.Amount)
		} else {
			s.CommodityImports[t.Key.Commodity] = t.Amount
		}
	}
	for _, t := range exports {
		s := summary(t.Key)
		s.TotalExports = s.TotalExports.Add(t.Amount)
		if prev, ok := s.CommodityExports[t.Key.Commodity]; ok {
			s.CommodityExports[t.Key.Commodity] = prev.Add(t.Amount)
		} else {
			s.CommodityExports[t.Key.Commodity] = t.Amount
		}
	}

	out := make([]entities.BalanceSummary, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].Year < out[j].Year
	})
	return out
}
