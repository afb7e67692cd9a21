package services

import (
	"testing"

	"commodities/domain/core/entities"
	"commodities/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(dir entities.TradeDirection, year int, country, commodity, amount string) entities.TradeFact {
	return entities.TradeFact{
		Direction: dir,
		Key:       entities.FactKey{Year: year, Country: country, Commodity: commodity},
		Amount:    valueobjects.MustDecimal(amount),
		Share:     valueobjects.Zero(),
	}
}

func TestComputeBalances(t *testing.T) {
	imports := []entities.TradeFact{
		trade(entities.DirectionImport, 2021, "Japan", "Copper", "120.5"),
		trade(entities.DirectionImport, 2021, "Japan", "Iron ore", "300"),
		trade(entities.DirectionImport, 2021, "Japan", "Copper", "9.5"),
		trade(entities.DirectionImport, 2020, "Japan", "Copper", "10"),
	}
	exports := []entities.TradeFact{
		trade(entities.DirectionExport, 2021, "Japan", "Steel", "42"),
		trade(entities.DirectionExport, 2021, "Chile", "Copper", "999"),
	}

	out := ComputeBalances(imports, exports)
	require.Len(t, out, 3)

	// sorted by country then year
	assert.Equal(t, entities.CountryYear{Country: "Chile", Year: 2021}, out[0].Key())
	assert.Equal(t, entities.CountryYear{Country: "Japan", Year: 2020}, out[1].Key())
	assert.Equal(t, entities.CountryYear{Country: "Japan", Year: 2021}, out[2].Key())

	chile := out[0]
	assert.True(t, chile.TotalImports.IsZero())
	assert.Equal(t, "999", chile.TotalExports.String())
	assert.Empty(t, chile.CommodityImports)

	japan := out[2]
	assert.True(t, japan.TotalImports.Equal(valueobjects.MustDecimal("430")))
	assert.True(t, japan.CommodityImports["Copper"].Equal(valueobjects.MustDecimal("130")))
	assert.True(t, japan.CommodityImports["Iron ore"].Equal(valueobjects.MustDecimal("300")))
	assert.True(t, japan.TotalExports.Equal(valueobjects.MustDecimal("42")))
	assert.True(t, japan.Net().Equal(valueobjects.MustDecimal("-388")))
}

func TestComputeBalances_TotalsMatchBreakdown(t *testing.T) {
	imports := []entities.TradeFact{
		trade(entities.DirectionImport, 2019, "Peru", "Zinc", "1.25"),
		trade(entities.DirectionImport, 2019, "Peru", "Lead", "2.5"),
		trade(entities.DirectionImport, 2019, "Peru", "Zinc", "0.25"),
	}

	for _, s := range ComputeBalances(imports, nil) {
		sum := valueobjects.Zero()
		for _, v := range s.CommodityImports {
			sum = sum.Add(v)
		}
		assert.True(t, sum.Equal(s.TotalImports))
	}
}

func TestComputeBalances_Idempotent(t *testing.T) {
	imports := []entities.TradeFact{trade(entities.DirectionImport, 2019, "Peru", "Zinc", "5")}
	exports := []entities.TradeFact{trade(entities.DirectionExport, 2019, "Peru", "Zinc", "7")}

	first := ComputeBalances(imports, exports)
	second := ComputeBalances(imports, exports)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Key(), second[i].Key())
		assert.True(t, first[i].TotalImports.Equal(second[i].TotalImports))
		assert.True(t, first[i].TotalExports.Equal(second[i].TotalExports))
	}
}

func TestComputeBalances_Empty(t *testing.T) {
	assert.Empty(t, ComputeBalances(nil, nil))
}
