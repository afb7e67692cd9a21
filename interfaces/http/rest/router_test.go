package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	querybus "commodities/application/queries/bus"
	queryhandlers "commodities/application/queries/handlers"
	domainconfig "commodities/domain/config"
	"commodities/domain/core/entities"
	"commodities/domain/core/valueobjects"
	"commodities/domain/readindex"
	"commodities/domain/services"
	"commodities/infrastructure/config"
	"commodities/infrastructure/observability"
	"commodities/infrastructure/persistence/memory"
	pkgobs "commodities/pkg/observability"
	"commodities/pkg/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool                     `json:"success"`
	Data    []map[string]interface{} `json:"data"`
	Error   string                   `json:"error"`
	Type    string                   `json:"type"`
}

func fact(country, commodity string, year int, amount string) entities.Fact {
	return entities.Fact{
		Type:   entities.FactProduction,
		Key:    entities.FactKey{Year: year, Country: country, Commodity: commodity},
		Metric: entities.MetricThousandTons,
		Amount: valueobjects.ParseAmount(amount),
	}
}

func publishedStore(t *testing.T) *memory.IndexStore {
	t.Helper()
	ctx := context.Background()
	cfg := domainconfig.DefaultDomainConfig()
	logger := zap.NewNop()

	ranked, _, err := services.NewDerivedMetricsEngine(cfg, logger).ComputeRankAndShare(ctx, []entities.Fact{
		fact("Chile", "Copper", 2020, "1000"),
		fact("Peru", "Copper", 2020, "500"),
		fact(valueobjects.WorldTotal, "Copper", 2020, "3000"),
	})
	require.NoError(t, err)

	imports := entities.TradeFact{
		Direction: entities.DirectionImport,
		Key:       entities.FactKey{Year: 2020, Country: "Peru", Commodity: "Copper"},
		Amount:    valueobjects.MustDecimal("12.5"),
		Share:     valueobjects.MustDecimal("0.4"),
	}
	entries, err := readindex.NewProjector(cfg).Project(readindex.Input{
		Countries:   []entities.Country{{Name: "Chile"}, {Name: "Peru"}, {Name: valueobjects.WorldTotal}},
		Commodities: []entities.Commodity{{Name: "Copper"}},
		Facts:       ranked,
		Trade:       []entities.TradeFact{imports},
		Balances:    services.ComputeBalances([]entities.TradeFact{imports}, nil),
	})
	require.NoError(t, err)

	store := memory.NewIndexStore(logger)
	require.NoError(t, store.Publish(ctx, "run-1", entries))
	return store
}

func newTestServer(t *testing.T, store *memory.IndexStore) *httptest.Server {
	t.Helper()
	return newLimitedServer(t, store, nil)
}

func newLimitedServer(t *testing.T, store *memory.IndexStore, limiter ratelimit.Limiter) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.Default()

	handler, err := queryhandlers.NewCatalogHandler(store, domainconfig.DefaultDomainConfig(), logger)
	require.NoError(t, err)
	queryBus := querybus.NewQueryBus()
	require.NoError(t, handler.Register(queryBus))

	router := NewRouter(queryBus, store, observability.NewCollector("test"), pkgobs.NewTracer("test", false), cfg, logger).
		WithRateLimiter(limiter)
	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) (int, envelope) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestCatalogRoutes_Success(t *testing.T) {
	srv := newTestServer(t, publishedStore(t))

	status, body := get(t, srv, "/api/v1/production?commodity=Copper&year=2020")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 3)

	status, body = get(t, srv, "/api/v1/imports?commodity=Copper&country=Peru")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "12.5", body.Data[0]["amount"])

	status, body = get(t, srv, "/api/v1/balance?country=Peru")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "12.5", body.Data[0]["total_imports"])

	status, body = get(t, srv, "/api/v1/prices?commodity=Copper")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
	assert.Empty(t, body.Data)

	status, body = get(t, srv, "/api/v1/countries")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body.Data, 3)
}

func TestCatalogRoutes_ClientErrors(t *testing.T) {
	srv := newTestServer(t, publishedStore(t))

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"imports needs two parameters", "/api/v1/imports?year=2020", http.StatusBadRequest},
		{"production needs a combination", "/api/v1/production?commodity=Copper", http.StatusBadRequest},
		{"balance rejects both", "/api/v1/balance?country=Peru&year=2020", http.StatusBadRequest},
		{"year must be numeric", "/api/v1/reserves?year=twenty", http.StatusBadRequest},
		{"gov info needs commodity", "/api/v1/gov_info", http.StatusBadRequest},
		{"unknown country", "/api/v1/countries?name=Atlantis", http.StatusNotFound},
		{"unknown route", "/api/v1/nothing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := get(t, srv, tt.path)
			assert.Equal(t, tt.status, status)
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestProbes(t *testing.T) {
	srv := newTestServer(t, publishedStore(t))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	var ready map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "run-1", ready["index_version"])

	// a served request shows up under its route pattern
	_, _ = get(t, srv, "/api/v1/countries")
	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `route="/api/v1/countries"`)
}

func TestReadiness_EmptyIndex(t *testing.T) {
	srv := newTestServer(t, memory.NewIndexStore(zap.NewNop()))

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	srv := newLimitedServer(t, publishedStore(t), ratelimit.NewPerMinute(2))

	for i := 0; i < 2; i++ {
		status, _ := get(t, srv, "/api/v1/countries")
		require.Equal(t, http.StatusOK, status)
	}
	status, body := get(t, srv, "/api/v1/countries")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", body.Type)

	// probes are never limited
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
