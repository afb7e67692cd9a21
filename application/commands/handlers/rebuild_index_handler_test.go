package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"commodities/application/commands"
	"commodities/application/commands/bus"
	"commodities/application/ports"
	"commodities/domain/config"
	"commodities/domain/core/entities"
	"commodities/domain/core/valueobjects"
	"commodities/domain/events"
	"commodities/domain/readindex"
	"commodities/domain/services"
	"commodities/infrastructure/persistence/memory"
	pkgerrors "commodities/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFactStore struct {
	facts       []entities.Fact
	trade       []entities.TradeFact
	countries   []entities.Country
	commodities []entities.Commodity
	written     []entities.Fact
	balances    []entities.BalanceSummary
}

func (f *fakeFactStore) QueryFacts(_ context.Context, t entities.FactType, _ ports.FactFilter) ([]entities.Fact, error) {
	var out []entities.Fact
	for _, fact := range f.facts {
		if fact.Type == t {
			out = append(out, fact)
		}
	}
	return out, nil
}

func (f *fakeFactStore) UpsertFact(context.Context, entities.Fact) error { return nil }

func (f *fakeFactStore) UpdateDerived(_ context.Context, facts []entities.Fact) error {
	f.written = facts
	return nil
}

func (f *fakeFactStore) TradeFacts(_ context.Context, d entities.TradeDirection, _ ports.FactFilter) ([]entities.TradeFact, error) {
	var out []entities.TradeFact
	for _, t := range f.trade {
		if t.Direction == d {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeFactStore) UpsertTrade(context.Context, entities.TradeFact) error { return nil }

func (f *fakeFactStore) ReplaceBalances(_ context.Context, b []entities.BalanceSummary) error {
	f.balances = b
	return nil
}

func (f *fakeFactStore) Balances(context.Context) ([]entities.BalanceSummary, error) {
	return f.balances, nil
}

func (f *fakeFactStore) GovInfo(context.Context) ([]entities.GovInfo, error) { return nil, nil }

func (f *fakeFactStore) Prices(context.Context) ([]entities.PricePoint, error) { return nil, nil }

func (f *fakeFactStore) Countries(context.Context) ([]entities.Country, error) {
	return f.countries, nil
}

func (f *fakeFactStore) Commodities(context.Context) ([]entities.Commodity, error) {
	return f.commodities, nil
}

type fakeExporter struct{ versions []string }

func (e *fakeExporter) Export(_ context.Context, version string, _ []readindex.IndexEntry) (string, error) {
	e.versions = append(e.versions, version)
	return "file:///tmp/" + version + ".json.sz", nil
}

type fakeEvents struct{ published []events.DomainEvent }

func (e *fakeEvents) Publish(_ context.Context, ev events.DomainEvent) error {
	e.published = append(e.published, ev)
	return nil
}

func (e *fakeEvents) PublishBatch(_ context.Context, evs []events.DomainEvent) error {
	e.published = append(e.published, evs...)
	return nil
}

type fakeLock struct {
	held     bool
	busy     bool
	released int
}

func (l *fakeLock) Acquire(context.Context, string, time.Duration, time.Duration) (func(context.Context) error, error) {
	if l.busy {
		return nil, errors.New("lock held by someone else")
	}
	l.held = true
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, nil
}

type recordingMetrics struct{ runs []ports.RebuildStats }

func (m *recordingMetrics) RecordRebuild(_ context.Context, s ports.RebuildStats) {
	m.runs = append(m.runs, s)
}

func copperStore() *fakeFactStore {
	mk := func(country, amount string) entities.Fact {
		return entities.Fact{
			Type:   entities.FactProduction,
			Key:    entities.FactKey{Year: 2020, Country: country, Commodity: "Copper"},
			Metric: entities.MetricThousandTons,
			Amount: valueobjects.ParseAmount(amount),
		}
	}
	return &fakeFactStore{
		facts: []entities.Fact{mk("Chile", "800"), mk(valueobjects.WorldTotal, "20000"), mk("Peru", "2400")},
		trade: []entities.TradeFact{{
			Direction: entities.DirectionExport,
			Key:       entities.FactKey{Year: 2020, Country: "Chile", Commodity: "Copper"},
			Amount:    valueobjects.MustDecimal("10"),
			Share:     valueobjects.MustDecimal("2"),
		}},
		countries:   []entities.Country{{Name: "Chile"}, {Name: "Peru"}, {Name: valueobjects.WorldTotal}},
		commodities: []entities.Commodity{{Name: "Copper"}},
	}
}

type harness struct {
	facts    *fakeFactStore
	index    *memory.IndexStore
	exporter *fakeExporter
	events   *fakeEvents
	lock     *fakeLock
	metrics  *recordingMetrics
	handler  *RebuildIndexHandler
}

func newHarness(facts *fakeFactStore) *harness {
	cfg := config.DefaultDomainConfig()
	h := &harness{
		facts:    facts,
		index:    memory.NewIndexStore(zap.NewNop()),
		exporter: &fakeExporter{},
		events:   &fakeEvents{},
		lock:     &fakeLock{},
		metrics:  &recordingMetrics{},
	}
	h.handler = NewRebuildIndexHandler(RebuildDeps{
		Facts:     facts,
		Engine:    services.NewDerivedMetricsEngine(cfg, zap.NewNop()),
		Projector: readindex.NewProjector(cfg),
		Publisher: h.index,
		Exporter:  h.exporter,
		Events:    h.events,
		Metrics:   h.metrics,
		Lock:      h.lock,
	}, RebuildOptions{LockTTL: time.Minute, LockTimeout: time.Second}, zap.NewNop())
	return h
}

func TestRebuild_PublishesRankedIndex(t *testing.T) {
	h := newHarness(copperStore())
	cmd := commands.NewRebuildIndexCommand("test", false)

	stats, err := h.handler.Rebuild(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Facts)
	assert.Equal(t, 1, stats.Balances)
	assert.Equal(t, cmd.RunID, stats.IndexVersion)

	version, _ := h.index.Version(context.Background())
	assert.Equal(t, cmd.RunID, version)

	chile, found, err := h.index.Get(context.Background(), readindex.PrimaryKey(entities.FactProduction, "Copper", "Chile"), 2020)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", chile.Payload.Fields[readindex.FieldRank])
	assert.Equal(t, "4.0000000000", chile.Payload.Fields[readindex.FieldShare])

	require.Len(t, h.facts.written, 3)
	require.Len(t, h.facts.balances, 1)
	assert.Equal(t, []string{cmd.RunID}, h.exporter.versions)
	assert.Len(t, h.events.published, 2)
	assert.Len(t, h.metrics.runs, 1)
	assert.False(t, h.lock.held)
	assert.Equal(t, 1, h.lock.released)
}

func TestRebuild_DryRunWritesNothing(t *testing.T) {
	h := newHarness(copperStore())

	stats, err := h.handler.Rebuild(context.Background(), commands.NewRebuildIndexCommand("test", true))
	require.NoError(t, err)
	assert.Positive(t, stats.Entries)

	version, _ := h.index.Version(context.Background())
	assert.Empty(t, version)
	assert.Nil(t, h.facts.written)
	assert.Nil(t, h.facts.balances)
	assert.Empty(t, h.events.published)
	assert.Equal(t, 0, h.lock.released)
}

func TestRebuild_InconsistentCatalogKeepsPreviousIndex(t *testing.T) {
	store := copperStore()
	h := newHarness(store)
	first := commands.NewRebuildIndexCommand("test", false)
	_, err := h.handler.Rebuild(context.Background(), first)
	require.NoError(t, err)

	store.countries = store.countries[1:] // drop Chile
	_, err = h.handler.Rebuild(context.Background(), commands.NewRebuildIndexCommand("test", false))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsIndexInconsistency(err))

	version, _ := h.index.Version(context.Background())
	assert.Equal(t, first.RunID, version)
	assert.Equal(t, 2, h.lock.released)
}

func TestRebuild_LockContention(t *testing.T) {
	h := newHarness(copperStore())
	h.lock.busy = true

	_, err := h.handler.Rebuild(context.Background(), commands.NewRebuildIndexCommand("test", false))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict))
	assert.Nil(t, h.facts.written)
}

func TestRebuild_ThroughCommandBus(t *testing.T) {
	h := newHarness(copperStore())
	b := bus.NewCommandBus(bus.LoggingMiddleware(zap.NewNop()), bus.TimeoutMiddleware(time.Minute))
	require.NoError(t, b.Register(commands.RebuildIndexCommand{}, h.handler))

	require.NoError(t, b.Send(context.Background(), commands.NewRebuildIndexCommand("test", false)))

	err := b.Send(context.Background(), commands.RebuildIndexCommand{RunID: "nope", Owner: "test"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}
