package queries

import (
	"testing"

	"commodities/domain/core/entities"
	"commodities/domain/readindex"
	pkgerrors "commodities/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yr(y int) *int { return &y }

func TestPlanRankedFacts(t *testing.T) {
	tests := []struct {
		name      string
		query     RankedFactsQuery
		wantIndex readindex.IndexName
		wantKey   readindex.IndexKey
		wantSort  *int
		wantField []string
		dominant  bool
	}{
		{
			name:      "commodity and country",
			query:     RankedFactsQuery{Type: entities.FactProduction, Commodity: "Copper", Country: "Chile"},
			wantIndex: readindex.IndexPrimary,
			wantKey:   readindex.PrimaryKey(entities.FactProduction, "Copper", "Chile"),
			wantField: []string{"amount", "year", "metric"},
		},
		{
			name:      "all three narrows the primary lookup",
			query:     RankedFactsQuery{Type: entities.FactReserves, Commodity: "Copper", Country: "Chile", Year: yr(2020)},
			wantIndex: readindex.IndexPrimary,
			wantKey:   readindex.PrimaryKey(entities.FactReserves, "Copper", "Chile"),
			wantSort:  yr(2020),
			wantField: []string{"amount", "year", "metric"},
		},
		{
			name:      "commodity and year",
			query:     RankedFactsQuery{Type: entities.FactProduction, Commodity: "Copper", Year: yr(2020)},
			wantIndex: readindex.IndexTypeAndCommodity,
			wantKey:   readindex.CommodityKey(entities.FactProduction, "Copper"),
			wantSort:  yr(2020),
			wantField: []string{"country", "amount", "metric", "share"},
		},
		{
			name:      "country and year",
			query:     RankedFactsQuery{Type: entities.FactProduction, Country: "Chile", Year: yr(2020)},
			wantIndex: readindex.IndexTypeAndCountry,
			wantKey:   readindex.CountryKey(entities.FactProduction, "Chile"),
			wantSort:  yr(2020),
			wantField: []string{"commodity", "amount", "metric", "rank", "share"},
		},
		{
			name:      "year only",
			query:     RankedFactsQuery{Type: entities.FactProduction, Year: yr(2020)},
			wantIndex: readindex.IndexType,
			wantKey:   readindex.TypeKey(entities.FactProduction),
			wantSort:  yr(2020),
			wantField: []string{"country", "commodity", "share"},
			dominant:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanRankedFacts(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, plan.Lookup.Index)
			assert.Equal(t, tt.wantKey, plan.Lookup.Key)
			assert.Equal(t, tt.wantSort, plan.Lookup.Sort)
			assert.Equal(t, tt.wantField, plan.Fields)
			assert.Equal(t, tt.dominant, plan.DominantOnly)
		})
	}
}

func TestPlanRankedFacts_Unroutable(t *testing.T) {
	for _, q := range []RankedFactsQuery{
		{Type: entities.FactProduction},
		{Type: entities.FactProduction, Commodity: "Copper"},
		{Type: entities.FactProduction, Country: "Chile"},
	} {
		_, err := PlanRankedFacts(q)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsMissingParameter(err))
	}
}

func TestPlanTrade(t *testing.T) {
	plan, err := PlanTrade(TradeQuery{Direction: entities.DirectionExport, Country: "Chile", Year: yr(2020)})
	require.NoError(t, err)
	assert.Equal(t, readindex.IndexTypeAndCountry, plan.Lookup.Index)
	assert.Equal(t, readindex.CountryKey(entities.FactExports, "Chile"), plan.Lookup.Key)

	_, err = PlanTrade(TradeQuery{Direction: entities.DirectionImport, Year: yr(2020)})
	assert.True(t, pkgerrors.IsMissingParameter(err))
}

func TestShape_MissingFieldsAreNil(t *testing.T) {
	e := readindex.IndexEntry{Payload: readindex.Payload{Fields: map[string]string{"amount": "12"}}}
	row := Shape(e, []string{"amount", "rank"}, []string{readindex.BreakdownImports})
	assert.Equal(t, "12", row["amount"])
	assert.Contains(t, row, "rank")
	assert.Nil(t, row["rank"])
	assert.Equal(t, map[string]string{}, row[readindex.BreakdownImports])
}

func TestCacheKeysDistinguishYears(t *testing.T) {
	a := RankedFactsQuery{Type: entities.FactProduction, Year: yr(2020)}
	b := RankedFactsQuery{Type: entities.FactProduction, Year: yr(2021)}
	c := RankedFactsQuery{Type: entities.FactProduction, Year: yr(2020)}
	assert.NotEqual(t, a.CacheKey(), b.CacheKey())
	assert.Equal(t, a.CacheKey(), c.CacheKey())
}

func TestCacheKeysEscapeSeparators(t *testing.T) {
	a := RankedFactsQuery{Type: entities.FactProduction, Commodity: "Rare|Earths", Country: "China", Year: yr(2020)}
	b := RankedFactsQuery{Type: entities.FactProduction, Commodity: "Rare", Country: "Earths|China", Year: yr(2020)}
	assert.NotEqual(t, a.CacheKey(), b.CacheKey())

	ta := TradeQuery{Direction: entities.DirectionImport, Commodity: "Rare|Earths", Country: "China"}
	tb := TradeQuery{Direction: entities.DirectionImport, Commodity: "Rare", Country: "Earths|China"}
	assert.NotEqual(t, ta.CacheKey(), tb.CacheKey())

	ga := GovInfoQuery{Commodity: "Tin|2020"}
	gb := GovInfoQuery{Commodity: "Tin", Year: yr(2020)}
	assert.NotEqual(t, ga.CacheKey(), gb.CacheKey())
}
