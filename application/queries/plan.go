package queries

import (
	"commodities/domain/core/entities"
	"commodities/domain/readindex"
	pkgerrors "commodities/pkg/errors"
)

// Plan is the outcome of routing a request: which partition to read, which
// payload fields to return and which rows to keep.
type Plan struct {
	Lookup     readindex.Query
	Fields     []string
	Breakdowns []string
	// DominantOnly keeps rows whose share is strictly above the threshold
	DominantOnly bool
}

type strategy int

const (
	byCommodityAndCountry strategy = iota
	byCommodityAndYear
	byCountryAndYear
	byYear
)

// rankedStrategy picks the first matching row of the production and
// reserves decision table
func rankedStrategy(q RankedFactsQuery) (strategy, error) {
	switch {
	case q.Commodity != "" && q.Country != "":
		return byCommodityAndCountry, nil
	case q.Commodity != "" && q.Year != nil:
		return byCommodityAndYear, nil
	case q.Country != "" && q.Year != nil:
		return byCountryAndYear, nil
	case q.Year != nil:
		return byYear, nil
	}
	return 0, pkgerrors.NewMissingParameterError("missing required parameter: need 'commodity' and 'country', or 'year'")
}

// PlanRankedFacts routes a production or reserves request
func PlanRankedFacts(q RankedFactsQuery) (Plan, error) {
	s, err := rankedStrategy(q)
	if err != nil {
		return Plan{}, err
	}

	t := q.Type
	switch s {
	case byCommodityAndCountry:
		lookup := readindex.Lookup(readindex.IndexPrimary, readindex.PrimaryKey(t, q.Commodity, q.Country))
		if q.Year != nil {
			lookup = lookup.At(*q.Year)
		}
		return Plan{
			Lookup: lookup,
			Fields: []string{readindex.FieldAmount, readindex.FieldYear, readindex.FieldMetric},
		}, nil
	case byCommodityAndYear:
		return Plan{
			Lookup: readindex.Lookup(readindex.IndexTypeAndCommodity, readindex.CommodityKey(t, q.Commodity)).At(*q.Year),
			Fields: []string{readindex.FieldCountry, readindex.FieldAmount, readindex.FieldMetric, readindex.FieldShare},
		}, nil
	case byCountryAndYear:
		return Plan{
			Lookup: readindex.Lookup(readindex.IndexTypeAndCountry, readindex.CountryKey(t, q.Country)).At(*q.Year),
			Fields: []string{readindex.FieldCommodity, readindex.FieldAmount, readindex.FieldMetric, readindex.FieldRank, readindex.FieldShare},
		}, nil
	default:
		return Plan{
			Lookup:       readindex.Lookup(readindex.IndexType, readindex.TypeKey(t)).At(*q.Year),
			Fields:       []string{readindex.FieldCountry, readindex.FieldCommodity, readindex.FieldShare},
			DominantOnly: true,
		}, nil
	}
}

func tradeStrategy(q TradeQuery) (strategy, error) {
	given := 0
	for _, ok := range []bool{q.Commodity != "", q.Country != "", q.Year != nil} {
		if ok {
			given++
		}
	}
	if given < 2 {
		return 0, pkgerrors.NewMissingParameterError("at least two of 'commodity', 'country' and 'year' are required")
	}
	switch {
	case q.Commodity != "" && q.Country != "":
		return byCommodityAndCountry, nil
	case q.Commodity != "":
		return byCommodityAndYear, nil
	default:
		return byCountryAndYear, nil
	}
}

// PlanTrade routes an imports or exports request
func PlanTrade(q TradeQuery) (Plan, error) {
	s, err := tradeStrategy(q)
	if err != nil {
		return Plan{}, err
	}

	t := q.Direction.FactType()
	switch s {
	case byCommodityAndCountry:
		lookup := readindex.Lookup(readindex.IndexPrimary, readindex.PrimaryKey(t, q.Commodity, q.Country))
		if q.Year != nil {
			lookup = lookup.At(*q.Year)
		}
		return Plan{
			Lookup: lookup,
			Fields: []string{readindex.FieldYear, readindex.FieldAmount, readindex.FieldShare},
		}, nil
	case byCommodityAndYear:
		return Plan{
			Lookup: readindex.Lookup(readindex.IndexTypeAndCommodity, readindex.CommodityKey(t, q.Commodity)).At(*q.Year),
			Fields: []string{readindex.FieldCountry, readindex.FieldAmount, readindex.FieldShare},
		}, nil
	default:
		return Plan{
			Lookup: readindex.Lookup(readindex.IndexTypeAndCountry, readindex.CountryKey(t, q.Country)).At(*q.Year),
			Fields: []string{readindex.FieldCommodity, readindex.FieldAmount, readindex.FieldShare},
		}, nil
	}
}

// PlanBalance routes a balance request. The query must already be valid.
func PlanBalance(q BalanceQuery) Plan {
	breakdowns := []string{readindex.BreakdownImports, readindex.BreakdownExports}
	if q.Country != "" {
		return Plan{
			Lookup:     readindex.Lookup(readindex.IndexPrimary, readindex.CountryKey(entities.FactBalance, q.Country)),
			Fields:     []string{readindex.FieldYear, readindex.FieldTotalImports, readindex.FieldTotalExports},
			Breakdowns: breakdowns,
		}
	}
	return Plan{
		Lookup:     readindex.Lookup(readindex.IndexType, readindex.TypeKey(entities.FactBalance)).At(*q.Year),
		Fields:     []string{readindex.FieldCountry},
		Breakdowns: breakdowns,
	}
}

// GovInfoFields are the report columns returned for every year
func GovInfoFields() []string {
	return []string{readindex.FieldYear, "prod_and_use", "recycling", "events", "world_resources", "substitutes"}
}

// Shape projects an entry onto the requested fields. A field the entry does
// not carry is returned as nil.
func Shape(e readindex.IndexEntry, fields, breakdowns []string) Row {
	row := make(Row, len(fields)+len(breakdowns))
	for _, name := range fields {
		if v, ok := e.Payload.Field(name); ok {
			row[name] = v
		} else {
			row[name] = nil
		}
	}
	for _, name := range breakdowns {
		if m, ok := e.Payload.Breakdown[name]; ok {
			row[name] = m
		} else {
			row[name] = map[string]string{}
		}
	}
	return row
}

// AllFields returns every payload field of an entry
func AllFields(e readindex.IndexEntry) Row {
	row := make(Row, len(e.Payload.Fields))
	for k, v := range e.Payload.Fields {
		row[k] = v
	}
	return row
}
