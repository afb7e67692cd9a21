package entities

import (
	"fmt"
	"strconv"

	"commodities/domain/core/valueobjects"
)

// FactType tags every fact and every read-index partition
type FactType string

const (
	FactProduction FactType = "Production"
	FactReserves   FactType = "Reserves"
	FactImports    FactType = "Imports"
	FactExports    FactType = "Exports"
	FactPrices     FactType = "Prices"
	FactGovInfo    FactType = "Govinfo"
	FactBalance    FactType = "Balance"
	FactCountry    FactType = "Country"
	FactCommodity  FactType = "Commodity"
)

// RankedTypes are the fact types that carry rank and share
var RankedTypes = []FactType{FactProduction, FactReserves}

func (t FactType) String() string { return string(t) }

// ParseFactType maps a string onto a known FactType
func ParseFactType(s string) (FactType, error) {
	switch FactType(s) {
	case FactProduction, FactReserves, FactImports, FactExports,
		FactPrices, FactGovInfo, FactBalance, FactCountry, FactCommodity:
		return FactType(s), nil
	}
	return "", fmt.Errorf("unknown fact type %q", s)
}

// Metric is the unit an amount is reported in. Unknown units are kept verbatim.
type Metric string

const (
	MetricKilograms      Metric = "kg"
	MetricMetricTon      Metric = "MT"
	MetricThousandTons   Metric = "1000 MT"
	MetricMillionTons    Metric = "1 M. MT"
	MetricMillionDollars Metric = "$ M."
	MetricMillionCubicM  Metric = "MCM"
	MetricMillionCarats  Metric = "Mct"
	MetricThousandCarats Metric = "Kct"
)

// FactKey is the natural key of a fact within its type
type FactKey struct {
	Year      int    `json:"year" db:"year"`
	Country   string `json:"country" db:"country"`
	Commodity string `json:"commodity" db:"commodity"`
}

// GroupKey identifies a (year, commodity) ranking group
type GroupKey struct {
	Year      int
	Commodity string
}

// String renders the key for logs
func (k FactKey) String() string {
	return k.Country + "/" + k.Commodity + "/" + strconv.Itoa(k.Year)
}

// Group returns the ranking group the key belongs to
func (k FactKey) Group() GroupKey {
	return GroupKey{Year: k.Year, Commodity: k.Commodity}
}

// DerivedStat holds the computed rank and world share of a fact.
// Both are nil when the amount is not numeric or the group has no world total.
type DerivedStat struct {
	Rank  *int                  `json:"rank,omitempty"`
	Share *valueobjects.Decimal `json:"share,omitempty"`
}

// Cleared reports whether neither field is set
func (d DerivedStat) Cleared() bool {
	return d.Rank == nil && d.Share == nil
}

// Fact is a production or reserves observation for one country, commodity and year
type Fact struct {
	Type    FactType
	Key     FactKey
	Metric  Metric
	Amount  valueobjects.Amount
	Note    string
	Derived DerivedStat
}

// WithDerived returns a copy of the fact carrying the given derived stat
func (f Fact) WithDerived(d DerivedStat) Fact {
	f.Derived = d
	return f
}

// IsPseudoCountry reports whether the fact belongs to an aggregate row
func (f Fact) IsPseudoCountry() bool {
	return valueobjects.IsPseudoCountry(f.Key.Country)
}

// IntPtr is a small helper for optional ranks
func IntPtr(i int) *int {
	return &i
}
