package readindex

import (
	"strconv"
	"strings"

	"commodities/domain/core/entities"
	"commodities/domain/core/valueobjects"
)

// field is one row of a static extraction table: the payload name and the
// function that reads it from the source entity. ok=false omits the field.
type field[T any] struct {
	name string
	get  func(T) (string, bool)
}

func always[T any](fn func(T) string) func(T) (string, bool) {
	return func(v T) (string, bool) { return fn(v), true }
}

func nonEmpty[T any](fn func(T) string) func(T) (string, bool) {
	return func(v T) (string, bool) {
		s := fn(v)
		return s, s != ""
	}
}

func extract[T any](v T, table []field[T]) map[string]string {
	out := make(map[string]string, len(table))
	for _, f := range table {
		if s, ok := f.get(v); ok {
			out[f.name] = s
		}
	}
	return out
}

func decimalMap(m map[string]valueobjects.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

// Payload field names shared with the query layer
const (
	FieldYear         = "year"
	FieldCountry      = "country"
	FieldCommodity    = "commodity"
	FieldMetric       = "metric"
	FieldAmount       = "amount"
	FieldNote         = "note"
	FieldRank         = "rank"
	FieldShare        = "share"
	FieldTotalImports = "total_imports"
	FieldTotalExports = "total_exports"
	FieldDate         = "date"
	FieldPrice        = "price"
	FieldDescription  = "description"
	FieldName         = "name"
	BreakdownImports  = "total_commodity_imports"
	BreakdownExports  = "total_commodity_exports"
)

const companiesSeparator = ", "

var rankedFactFields = []field[entities.Fact]{
	{FieldYear, always(func(f entities.Fact) string { return strconv.Itoa(f.Key.Year) })},
	{FieldCountry, always(func(f entities.Fact) string { return f.Key.Country })},
	{FieldCommodity, always(func(f entities.Fact) string { return f.Key.Commodity })},
	{FieldMetric, always(func(f entities.Fact) string { return string(f.Metric) })},
	{FieldAmount, always(func(f entities.Fact) string { return f.Amount.Raw() })},
	{FieldNote, nonEmpty(func(f entities.Fact) string { return f.Note })},
	{FieldRank, func(f entities.Fact) (string, bool) {
		if f.Derived.Rank == nil {
			return "", false
		}
		return strconv.Itoa(*f.Derived.Rank), true
	}},
	{FieldShare, func(f entities.Fact) (string, bool) {
		if f.Derived.Share == nil {
			return "", false
		}
		return f.Derived.Share.String(), true
	}},
}

var tradeFields = []field[entities.TradeFact]{
	{FieldYear, always(func(t entities.TradeFact) string { return strconv.Itoa(t.Key.Year) })},
	{FieldCountry, always(func(t entities.TradeFact) string { return t.Key.Country })},
	{FieldCommodity, always(func(t entities.TradeFact) string { return t.Key.Commodity })},
	{FieldAmount, always(func(t entities.TradeFact) string { return t.Amount.String() })},
	{FieldShare, always(func(t entities.TradeFact) string { return t.Share.String() })},
}

var govInfoFields = []field[entities.GovInfo]{
	{FieldYear, always(func(g entities.GovInfo) string { return strconv.Itoa(g.Year) })},
	{FieldCommodity, always(func(g entities.GovInfo) string { return g.Commodity })},
	{"prod_and_use", always(func(g entities.GovInfo) string { return g.ProdAndUse })},
	{"recycling", always(func(g entities.GovInfo) string { return g.Recycling })},
	{"events", always(func(g entities.GovInfo) string { return g.Events })},
	{"world_resources", always(func(g entities.GovInfo) string { return g.WorldResources })},
	{"substitutes", always(func(g entities.GovInfo) string { return g.Substitutes })},
}

var balanceFields = []field[entities.BalanceSummary]{
	{FieldCountry, always(func(b entities.BalanceSummary) string { return b.Country })},
	{FieldYear, always(func(b entities.BalanceSummary) string { return strconv.Itoa(b.Year) })},
	{FieldTotalImports, always(func(b entities.BalanceSummary) string { return b.TotalImports.String() })},
	{FieldTotalExports, always(func(b entities.BalanceSummary) string { return b.TotalExports.String() })},
}

var pricePointFields = []field[entities.PricePoint]{
	{FieldDate, always(func(p entities.PricePoint) string { return p.Date.Format(entities.PriceDateLayout) })},
	{FieldPrice, always(func(p entities.PricePoint) string { return p.Price.String() })},
	{FieldDescription, nonEmpty(func(p entities.PricePoint) string { return p.Description })},
}

var countryFields = []field[entities.Country]{
	{FieldName, always(func(c entities.Country) string { return c.Name })},
	{"income_group", nonEmpty(func(c entities.Country) string { return c.IncomeGroup })},
	{"ease_of_biz", nonEmpty(func(c entities.Country) string { return c.EaseOfBiz })},
	{"gdp", nonEmpty(func(c entities.Country) string { return c.GDP })},
}

var commodityFields = []field[entities.Commodity]{
	{FieldName, always(func(c entities.Commodity) string { return c.Name })},
	{"info", nonEmpty(func(c entities.Commodity) string { return c.Info })},
	{"companies", nonEmpty(func(c entities.Commodity) string { return strings.Join(c.Companies, companiesSeparator) })},
}
