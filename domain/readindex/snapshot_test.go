package readindex

import (
	"strconv"
	"testing"

	"commodities/domain/core/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedEntry(commodity, country string, year int, amount string) IndexEntry {
	byCountry := CountryKey(entities.FactProduction, country)
	byCommodity := CommodityKey(entities.FactProduction, commodity)
	return IndexEntry{
		Key:         PrimaryKey(entities.FactProduction, commodity, country),
		Sort:        year,
		ByCountry:   &byCountry,
		ByCommodity: &byCommodity,
		ByType:      true,
		Payload: Payload{Fields: map[string]string{
			FieldYear: strconv.Itoa(year), FieldCountry: country, FieldCommodity: commodity, FieldAmount: amount,
		}},
	}
}

func TestSnapshot_AccessPaths(t *testing.T) {
	snap, err := NewSnapshot("v7", []IndexEntry{
		rankedEntry("Copper", "Peru", 2021, "2200"),
		rankedEntry("Copper", "Chile", 2020, "800"),
		rankedEntry("Copper", "Chile", 2021, "900"),
		rankedEntry("Zinc", "Peru", 2020, "1400"),
	})
	require.NoError(t, err)
	assert.Equal(t, "v7", snap.Version())
	assert.Equal(t, 4, snap.Len())

	primary := snap.Query(Lookup(IndexPrimary, PrimaryKey(entities.FactProduction, "Copper", "Chile")))
	require.Len(t, primary, 2)
	assert.Equal(t, 2020, primary[0].Sort)
	assert.Equal(t, 2021, primary[1].Sort)

	byCommodity := snap.Query(Lookup(IndexTypeAndCommodity, CommodityKey(entities.FactProduction, "Copper")).At(2021))
	require.Len(t, byCommodity, 2)
	assert.Equal(t, "Chile", byCommodity[0].Payload.Fields[FieldCountry])
	assert.Equal(t, "Peru", byCommodity[1].Payload.Fields[FieldCountry])

	byCountry := snap.Query(Lookup(IndexTypeAndCountry, CountryKey(entities.FactProduction, "Peru")))
	require.Len(t, byCountry, 2)
	assert.Equal(t, 2020, byCountry[0].Sort)

	byType := snap.Query(Lookup(IndexType, TypeKey(entities.FactProduction)).At(2020))
	assert.Len(t, byType, 2)

	assert.Empty(t, snap.Query(Lookup(IndexPrimary, PrimaryKey(entities.FactReserves, "Copper", "Chile"))))
}

func TestSnapshot_RejectsDuplicates(t *testing.T) {
	_, err := NewSnapshot("v1", []IndexEntry{
		rankedEntry("Copper", "Chile", 2020, "800"),
		rankedEntry("Copper", "Chile", 2020, "801"),
	})
	assert.Error(t, err)
}

func TestSnapshot_QueryReturnsCopy(t *testing.T) {
	snap, err := NewSnapshot("v1", []IndexEntry{rankedEntry("Copper", "Chile", 2020, "800")})
	require.NoError(t, err)

	got := snap.Query(Lookup(IndexPrimary, PrimaryKey(entities.FactProduction, "Copper", "Chile")))
	got[0].Sort = 1999

	_, ok := snap.Get(PrimaryKey(entities.FactProduction, "Copper", "Chile"), 2020)
	assert.True(t, ok)
}

func TestEmptySnapshot(t *testing.T) {
	snap := EmptySnapshot()
	assert.Equal(t, 0, snap.Len())
	assert.Empty(t, snap.Entries())
}
