package handlers

import (
	"context"
	"fmt"

	"commodities/application/ports"
	"commodities/application/queries"
	"commodities/application/queries/bus"
	"commodities/domain/config"
	"commodities/domain/core/entities"
	"commodities/domain/core/valueobjects"
	"commodities/domain/readindex"
	pkgerrors "commodities/pkg/errors"
	"go.uber.org/zap"
)

// CatalogHandler answers every catalog read from the read index
type CatalogHandler struct {
	index     ports.IndexReader
	threshold valueobjects.Decimal
	cfg       *config.DomainConfig
	logger    *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(index ports.IndexReader, cfg *config.DomainConfig, logger *zap.Logger) (*CatalogHandler, error) {
	threshold, err := valueobjects.NewDecimal(fmt.Sprintf("%g", cfg.DominantShareThreshold))
	if err != nil {
		return nil, fmt.Errorf("invalid dominant share threshold: %w", err)
	}
	return &CatalogHandler{
		index:     index,
		threshold: threshold,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// RankedFacts handles production and reserves lookups
func (h *CatalogHandler) RankedFacts(ctx context.Context, q queries.RankedFactsQuery) ([]queries.Row, error) {
	plan, err := queries.PlanRankedFacts(q)
	if err != nil {
		return nil, err
	}
	return h.run(ctx, plan)
}

// Trade handles imports and exports lookups
func (h *CatalogHandler) Trade(ctx context.Context, q queries.TradeQuery) ([]queries.Row, error) {
	plan, err := queries.PlanTrade(q)
	if err != nil {
		return nil, err
	}
	return h.run(ctx, plan)
}

// Balance handles balance lookups
func (h *CatalogHandler) Balance(ctx context.Context, q queries.BalanceQuery) ([]queries.Row, error) {
	return h.run(ctx, queries.PlanBalance(q))
}

// Prices returns the price series of a commodity, empty when it has none
func (h *CatalogHandler) Prices(ctx context.Context, q queries.PricesQuery) ([]queries.Row, error) {
	key := readindex.CommodityKey(entities.FactPrices, q.Commodity)
	entry, found, err := h.index.Get(ctx, key, h.cfg.PriceSeriesSortKey)
	if err != nil {
		return nil, err
	}
	rows := make([]queries.Row, 0)
	if !found {
		return rows, nil
	}
	for _, point := range entry.Payload.Series {
		rows = append(rows, queries.Row{
			readindex.FieldDate:  point[readindex.FieldDate],
			readindex.FieldPrice: point[readindex.FieldPrice],
		})
	}
	return rows, nil
}

// GovInfo returns one report by year, or every report of a commodity
func (h *CatalogHandler) GovInfo(ctx context.Context, q queries.GovInfoQuery) ([]queries.Row, error) {
	fields := queries.GovInfoFields()
	key := readindex.CommodityKey(entities.FactGovInfo, q.Commodity)

	if q.Year != nil {
		entry, found, err := h.index.Get(ctx, key, *q.Year)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, pkgerrors.NewNotFoundError(fmt.Sprintf("gov info for %s in %d", q.Commodity, *q.Year))
		}
		return []queries.Row{queries.Shape(entry, fields, nil)}, nil
	}

	entries, err := h.index.Query(ctx, readindex.Lookup(readindex.IndexPrimary, key))
	if err != nil {
		return nil, err
	}
	rows := make([]queries.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, queries.Shape(e, fields, nil))
	}
	return rows, nil
}

// Dimension lists countries or commodities
func (h *CatalogHandler) Dimension(ctx context.Context, q queries.DimensionQuery) ([]queries.Row, error) {
	if q.Name != "" {
		key := readindex.IndexKey{Type: q.Dimension}
		if q.Dimension == entities.FactCountry {
			key.Country = q.Name
		} else {
			key.Commodity = q.Name
		}
		entry, found, err := h.index.Get(ctx, key, h.cfg.DimensionSortKey)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, pkgerrors.NewNotFoundError(fmt.Sprintf("%s %s", q.Dimension, q.Name))
		}
		return []queries.Row{queries.AllFields(entry)}, nil
	}

	entries, err := h.index.Query(ctx, readindex.Lookup(readindex.IndexType, readindex.TypeKey(q.Dimension)))
	if err != nil {
		return nil, err
	}
	rows := make([]queries.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, queries.AllFields(e))
	}
	return rows, nil
}

func (h *CatalogHandler) run(ctx context.Context, plan queries.Plan) ([]queries.Row, error) {
	entries, err := h.index.Query(ctx, plan.Lookup)
	if err != nil {
		return nil, err
	}

	rows := make([]queries.Row, 0, len(entries))
	for _, e := range entries {
		if plan.DominantOnly && !h.dominant(e) {
			continue
		}
		rows = append(rows, queries.Shape(e, plan.Fields, plan.Breakdowns))
	}

	h.logger.Debug("Index lookup served",
		zap.String("index", string(plan.Lookup.Index)),
		zap.String("key", plan.Lookup.Key.String()),
		zap.Int("entries", len(entries)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// dominant reports whether the entry's share is strictly above the threshold.
// Entries without a share never qualify.
func (h *CatalogHandler) dominant(e readindex.IndexEntry) bool {
	raw, ok := e.Payload.Field(readindex.FieldShare)
	if !ok {
		return false
	}
	share, err := valueobjects.NewDecimal(raw)
	if err != nil {
		return false
	}
	return share.Cmp(h.threshold) > 0
}

// Adapt turns a typed handler method into a bus.QueryHandler
func Adapt[Q bus.Query](fn func(context.Context, Q) ([]queries.Row, error)) bus.QueryHandler {
	return bus.QueryHandlerFunc(func(ctx context.Context, query bus.Query) (interface{}, error) {
		q, ok := query.(Q)
		if !ok {
			return nil, pkgerrors.NewInternalError(fmt.Sprintf("unexpected query type %T", query))
		}
		return fn(ctx, q)
	})
}

// Register wires every catalog query onto the bus
func (h *CatalogHandler) Register(b *bus.QueryBus) error {
	registrations := []struct {
		query   bus.Query
		handler bus.QueryHandler
	}{
		{queries.RankedFactsQuery{}, Adapt(h.RankedFacts)},
		{queries.TradeQuery{}, Adapt(h.Trade)},
		{queries.BalanceQuery{}, Adapt(h.Balance)},
		{queries.PricesQuery{}, Adapt(h.Prices)},
		{queries.GovInfoQuery{}, Adapt(h.GovInfo)},
		{queries.DimensionQuery{}, Adapt(h.Dimension)},
	}
	for _, r := range registrations {
		if err := b.Register(r.query, r.handler); err != nil {
			return err
		}
	}
	return nil
}
