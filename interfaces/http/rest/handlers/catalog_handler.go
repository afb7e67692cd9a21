package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"commodities/application/queries"
	querybus "commodities/application/queries/bus"
	"commodities/domain/core/entities"
	"commodities/pkg/common"
	pkgerrors "commodities/pkg/errors"

	"go.uber.org/zap"
)

// CatalogHandler serves the read-only catalog endpoints
type CatalogHandler struct {
	queryBus *querybus.QueryBus
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(queryBus *querybus.QueryBus, errHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		queryBus: queryBus,
		errors:   errHandler,
		logger:   logger,
	}
}

// filters are the optional query parameters shared by every endpoint
type filters struct {
	Commodity string
	Country   string
	Year      *int
}

func parseFilters(r *http.Request) (filters, error) {
	q := r.URL.Query()
	f := filters{
		Commodity: strings.TrimSpace(q.Get("commodity")),
		Country:   strings.TrimSpace(q.Get("country")),
	}
	if raw := strings.TrimSpace(q.Get("year")); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			return filters{}, pkgerrors.NewValidationError("parameter 'year' must be an integer")
		}
		f.Year = &y
	}
	return f, nil
}

// Production handles GET /production
func (h *CatalogHandler) Production(w http.ResponseWriter, r *http.Request) {
	h.ranked(w, r, entities.FactProduction)
}

// Reserves handles GET /reserves
func (h *CatalogHandler) Reserves(w http.ResponseWriter, r *http.Request) {
	h.ranked(w, r, entities.FactReserves)
}

func (h *CatalogHandler) ranked(w http.ResponseWriter, r *http.Request, t entities.FactType) {
	f, err := parseFilters(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.ask(w, r, queries.RankedFactsQuery{Type: t, Commodity: f.Commodity, Country: f.Country, Year: f.Year})
}

// Imports handles GET /imports
func (h *CatalogHandler) Imports(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, entities.DirectionImport)
}

// Exports handles GET /exports
func (h *CatalogHandler) Exports(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, entities.DirectionExport)
}

func (h *CatalogHandler) trade(w http.ResponseWriter, r *http.Request, d entities.TradeDirection) {
	f, err := parseFilters(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.ask(w, r, queries.TradeQuery{Direction: d, Commodity: f.Commodity, Country: f.Country, Year: f.Year})
}

// Balance handles GET /balance
func (h *CatalogHandler) Balance(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.ask(w, r, queries.BalanceQuery{Country: f.Country, Year: f.Year})
}

// Prices handles GET /prices
func (h *CatalogHandler) Prices(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.ask(w, r, queries.PricesQuery{Commodity: f.Commodity})
}

// GovInfo handles GET /gov_info
func (h *CatalogHandler) GovInfo(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.ask(w, r, queries.GovInfoQuery{Commodity: f.Commodity, Year: f.Year})
}

// Countries handles GET /countries
func (h *CatalogHandler) Countries(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.DimensionQuery{
		Dimension: entities.FactCountry,
		Name:      strings.TrimSpace(r.URL.Query().Get("name")),
	})
}

// Commodities handles GET /commodities
func (h *CatalogHandler) Commodities(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.DimensionQuery{
		Dimension: entities.FactCommodity,
		Name:      strings.TrimSpace(r.URL.Query().Get("name")),
	})
}

func (h *CatalogHandler) ask(w http.ResponseWriter, r *http.Request, query querybus.Query) {
	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
