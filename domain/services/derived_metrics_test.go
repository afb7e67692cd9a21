package services

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"commodities/domain/config"
	"commodities/domain/core/entities"
	"commodities/domain/core/valueobjects"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fact(t entities.FactType, year int, country, commodity, amount string) entities.Fact {
	return entities.Fact{
		Type:   t,
		Key:    entities.FactKey{Year: year, Country: country, Commodity: commodity},
		Metric: entities.MetricMetricTon,
		Amount: valueobjects.ParseAmount(amount),
	}
}

func newEngine() *DerivedMetricsEngine {
	return NewDerivedMetricsEngine(config.DefaultDomainConfig(), zap.NewNop())
}

func byCountry(facts []entities.Fact) map[string]entities.Fact {
	out := make(map[string]entities.Fact, len(facts))
	for _, f := range facts {
		out[f.Type.String()+"/"+f.Key.Country] = f
	}
	return out
}

func TestComputeRankAndShare_CopperScenario(t *testing.T) {
	facts := []entities.Fact{
		fact(entities.FactProduction, 2020, "Chile", "Copper", "800"),
		fact(entities.FactProduction, 2020, valueobjects.WorldTotal, "Copper", "20000"),
		fact(entities.FactProduction, 2020, "Peru", "Copper", "2400"),
	}

	out, stats, err := newEngine().ComputeRankAndShare(context.Background(), facts)
	require.NoError(t, err)
	require.Len(t, out, 3)

	rows := byCountry(out)
	chile := rows["Production/Chile"]
	peru := rows["Production/Peru"]

	require.NotNil(t, chile.Derived.Rank)
	require.NotNil(t, chile.Derived.Share)
	assert.Equal(t, 2, *chile.Derived.Rank)
	assert.True(t, chile.Derived.Share.Equal(valueobjects.MustDecimal("4.0")), chile.Derived.Share.String())

	require.NotNil(t, peru.Derived.Rank)
	assert.Equal(t, 1, *peru.Derived.Rank)
	assert.True(t, peru.Derived.Share.Equal(valueobjects.MustDecimal("12.0")), peru.Derived.Share.String())

	world := rows["Production/"+valueobjects.WorldTotal]
	assert.True(t, world.Derived.Cleared())

	assert.Equal(t, 1, stats.Groups)
	assert.Equal(t, 2, stats.Ranked)
	assert.Equal(t, 0, stats.MissingWorldTotal)
}

func TestComputeRankAndShare_PreservesInputOrder(t *testing.T) {
	facts := []entities.Fact{
		fact(entities.FactProduction, 2020, "Peru", "Copper", "2400"),
		fact(entities.FactReserves, 2020, "Chile", "Copper", "190000"),
		fact(entities.FactProduction, 2021, "Chile", "Copper", "5600"),
		fact(entities.FactProduction, 2020, "Chile", "Copper", "800"),
	}

	out, _, err := newEngine().ComputeRankAndShare(context.Background(), facts)
	require.NoError(t, err)
	for i := range facts {
		assert.Equal(t, facts[i].Key, out[i].Key)
		assert.Equal(t, facts[i].Type, out[i].Type)
	}
}

func TestComputeRankAndShare_TypesRankedIndependently(t *testing.T) {
	facts := []entities.Fact{
		fact(entities.FactProduction, 2020, "Chile", "Copper", "100"),
		fact(entities.FactReserves, 2020, "Peru", "Copper", "5000"),
		fact(entities.FactReserves, 2020, "Chile", "Copper", "1000"),
	}

	out, stats, err := newEngine().ComputeRankAndShare(context.Background(), facts)
	require.NoError(t, err)

	rows := byCountry(out)
	assert.Equal(t, 1, *rows["Production/Chile"].Derived.Rank)
	assert.Equal(t, 2, *rows["Reserves/Chile"].Derived.Rank)
	assert.Equal(t, 1, *rows["Reserves/Peru"].Derived.Rank)
	assert.Equal(t, 2, stats.Groups)
	assert.Equal(t, 2, stats.MissingWorldTotal)
}

func TestComputeRankAndShare_ReservesUsesWorldTotal(t *testing.T) {
	facts := []entities.Fact{
		fact(entities.FactReserves, 2022, "Chile", "Lithium", "9300000"),
		fact(entities.FactReserves, 2022, valueobjects.WorldTotal, "Lithium", "26000000"),
	}

	out, _, err := newEngine().ComputeRankAndShare(context.Background(), facts)
	require.NoError(t, err)

	chile := byCountry(out)["Reserves/Chile"]
	require.NotNil(t, chile.Derived.Share)
	assert.Equal(t, "35.7692307692", chile.Derived.Share.String())
}

func TestRankGroup_EdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		rows      []entities.Fact
		wantRanks []*int
		wantShare []string // "" means nil
	}{
		{
			name: "ties share a rank and skip the next",
			rows: []entities.Fact{
				fact(entities.FactProduction, 2020, "A", "Tin", "500"),
				fact(entities.FactProduction, 2020, "B", "Tin", "500"),
				fact(entities.FactProduction, 2020, "C", "Tin", "100"),
			},
			wantRanks: []*int{entities.IntPtr(1), entities.IntPtr(1), entities.IntPtr(3)},
			wantShare: []string{"", "", ""},
		},
		{
			name: "malformed peer does not count",
			rows: []entities.Fact{
				fact(entities.FactProduction, 2020, "A", "Tin", "Withheld"),
				fact(entities.FactProduction, 2020, "B", "Tin", "300"),
				fact(entities.FactProduction, 2020, valueobjects.WorldTotal, "Tin", "1000"),
			},
			wantRanks: []*int{nil, entities.IntPtr(1), nil},
			wantShare: []string{"", "30.0000000000", ""},
		},
		{
			name: "zero amount is not numeric",
			rows: []entities.Fact{
				fact(entities.FactProduction, 2020, "A", "Tin", "0"),
				fact(entities.FactProduction, 2020, "B", "Tin", "7"),
			},
			wantRanks: []*int{nil, entities.IntPtr(1)},
			wantShare: []string{"", ""},
		},
		{
			name: "other countries are excluded from ranking",
			rows: []entities.Fact{
				fact(entities.FactProduction, 2020, valueobjects.OtherCountries, "Tin", "9000"),
				fact(entities.FactProduction, 2020, "B", "Tin", "10"),
				fact(entities.FactProduction, 2020, valueobjects.WorldTotal, "Tin", "10000"),
			},
			wantRanks: []*int{nil, entities.IntPtr(1), nil},
			wantShare: []string{"", "0.1000000000", ""},
		},
		{
			name: "non numeric world total leaves share unset",
			rows: []entities.Fact{
				fact(entities.FactProduction, 2020, "B", "Tin", "10"),
				fact(entities.FactProduction, 2020, valueobjects.WorldTotal, "Tin", "NA"),
			},
			wantRanks: []*int{entities.IntPtr(1), nil},
			wantShare: []string{"", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derived, _ := RankGroup(tt.rows, 2)
			require.Len(t, derived, len(tt.rows))
			for i, d := range derived {
				assert.Equal(t, tt.wantRanks[i], d.Rank, "rank of row %d", i)
				if tt.wantShare[i] == "" {
					assert.Nil(t, d.Share, "share of row %d", i)
				} else {
					require.NotNil(t, d.Share, "share of row %d", i)
					assert.Equal(t, tt.wantShare[i], d.Share.String())
				}
			}
		})
	}
}

func TestComputeRankAndShare_ClearsStaleDerivedValues(t *testing.T) {
	stale := fact(entities.FactProduction, 2020, "Chile", "Copper", "Large")
	stale.Derived = entities.DerivedStat{Rank: entities.IntPtr(1), Share: ptr(valueobjects.MustDecimal("50"))}

	out, stats, err := newEngine().ComputeRankAndShare(context.Background(), []entities.Fact{stale})
	require.NoError(t, err)
	assert.True(t, out[0].Derived.Cleared())
	assert.Equal(t, 1, stats.ParseFailures)
	// the input slice is left untouched
	assert.NotNil(t, stale.Derived.Rank)
}

func TestComputeRankAndShare_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newEngine().ComputeRankAndShare(ctx, []entities.Fact{
		fact(entities.FactProduction, 2020, "Chile", "Copper", "1"),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func ptr(d valueobjects.Decimal) *valueobjects.Decimal { return &d }

// groupFromAmounts builds one (year, commodity) group. Non-positive amounts
// become sentinel strings so every generated group mixes valid and invalid rows.
func groupFromAmounts(amounts []int64, withWorld bool) []entities.Fact {
	rows := make([]entities.Fact, 0, len(amounts)+1)
	var sum int64
	for i, a := range amounts {
		raw := "NA"
		if a > 0 {
			raw = strconv.FormatInt(a, 10)
			sum += a
		}
		rows = append(rows, fact(entities.FactProduction, 2020, fmt.Sprintf("C%03d", i), "Zinc", raw))
	}
	if withWorld && sum > 0 {
		// the aggregate also covers "Other countries", so it is never below the sum
		rows = append(rows, fact(entities.FactProduction, 2020, valueobjects.WorldTotal, "Zinc", strconv.FormatInt(sum+sum/10+1, 10)))
	}
	return rows
}

func TestProperty_DerivedMetrics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	engine := newEngine()
	amounts := gen.SliceOf(gen.Int64Range(-5, 5000))

	properties.Property("maximum amount ranks first and ties rank equally", prop.ForAll(
		func(as []int64) bool {
			rows := groupFromAmounts(as, true)
			derived, _ := RankGroup(rows, 2)

			var max int64
			for _, a := range as {
				if a > max {
					max = a
				}
			}
			seen := map[int64]int{}
			for i, a := range as {
				if a <= 0 {
					continue
				}
				r := *derived[i].Rank
				if a == max && r != 1 {
					return false
				}
				if prev, ok := seen[a]; ok && prev != r {
					return false
				}
				seen[a] = r
			}
			return true
		},
		amounts,
	))

	properties.Property("shares of individual countries never exceed 100", prop.ForAll(
		func(as []int64) bool {
			rows := groupFromAmounts(as, true)
			derived, _ := RankGroup(rows, 2)
			total := valueobjects.Zero()
			n := 0
			for _, d := range derived {
				if d.Share != nil {
					total = total.Add(*d.Share)
					n++
				}
			}
			// each share is rounded half-up to 0.01
			slack := float64(n) * 0.005
			return total.Float64() <= 100+slack+1e-9
		},
		amounts,
	))

	properties.Property("non numeric rows are always cleared", prop.ForAll(
		func(as []int64) bool {
			rows := groupFromAmounts(as, true)
			derived, _ := RankGroup(rows, 2)
			for i, r := range rows {
				if !r.Amount.IsNumeric() && !derived[i].Cleared() {
					return false
				}
			}
			return true
		},
		amounts,
	))

	properties.Property("recomputation is idempotent", prop.ForAll(
		func(as []int64) bool {
			rows := groupFromAmounts(as, true)
			first, _, err := engine.ComputeRankAndShare(context.Background(), rows)
			if err != nil {
				return false
			}
			second, _, err := engine.ComputeRankAndShare(context.Background(), first)
			if err != nil {
				return false
			}
			for i := range first {
				if !sameDerived(first[i].Derived, second[i].Derived) {
					return false
				}
			}
			return true
		},
		amounts,
	))

	properties.TestingRun(t)
}

func sameDerived(a, b entities.DerivedStat) bool {
	if (a.Rank == nil) != (b.Rank == nil) || (a.Share == nil) != (b.Share == nil) {
		return false
	}
	if a.Rank != nil && *a.Rank != *b.Rank {
		return false
	}
	if a.Share != nil && a.Share.String() != b.Share.String() {
		return false
	}
	return true
}
