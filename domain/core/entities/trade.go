package entities

import (
	"errors"

	"commodities/domain/core/valueobjects"
)

// TradeDirection distinguishes import rows from export rows
type TradeDirection string

const (
	DirectionImport TradeDirection = "import"
	DirectionExport TradeDirection = "export"
)

// FactType returns the index type tag for the direction
func (d TradeDirection) FactType() FactType {
	if d == DirectionExport {
		return FactExports
	}
	return FactImports
}

// TradeFact is an import or export observation. Amount and Share are never negative.
type TradeFact struct {
	Direction TradeDirection
	Key       FactKey
	Amount    valueobjects.Decimal
	Share     valueobjects.Decimal
}

// Validate enforces the non-negative constraints
func (t TradeFact) Validate() error {
	if t.Amount.Sign() < 0 {
		return errors.New("trade amount must not be negative")
	}
	if t.Share.Sign() < 0 {
		return errors.New("trade share must not be negative")
	}
	if t.Direction != DirectionImport && t.Direction != DirectionExport {
		return errors.New("trade direction must be import or export")
	}
	return nil
}

// CountryYear identifies a balance summary
type CountryYear struct {
	Country string
	Year    int
}

// BalanceSummary aggregates trade for one country and year
type BalanceSummary struct {
	Country          string
	Year             int
	TotalImports     valueobjects.Decimal
	TotalExports     valueobjects.Decimal
	CommodityImports map[string]valueobjects.Decimal
	CommodityExports map[string]valueobjects.Decimal
}

// NewBalanceSummary returns an empty summary with zero totals
func NewBalanceSummary(country string, year int) *BalanceSummary {
	return &BalanceSummary{
		Country:          country,
		Year:             year,
		TotalImports:     valueobjects.Zero(),
		TotalExports:     valueobjects.Zero(),
		CommodityImports: make(map[string]valueobjects.Decimal),
		CommodityExports: make(map[string]valueobjects.Decimal),
	}
}

// Key returns the (country, year) identity
func (b BalanceSummary) Key() CountryYear {
	return CountryYear{Country: b.Country, Year: b.Year}
}

// Net returns exports minus imports
func (b BalanceSummary) Net() valueobjects.Decimal {
	return b.TotalExports.Add(b.TotalImports.Mul(valueobjects.NewDecimalFromInt64(-1)))
}
