package readindex

import (
	"fmt"
	"sort"

	"commodities/domain/config"
	"commodities/domain/core/entities"
	pkgerrors "commodities/pkg/errors"
)

// Input is everything a rebuild projects. Facts carry their derived stats.
type Input struct {
	Facts       []entities.Fact
	Trade       []entities.TradeFact
	Balances    []entities.BalanceSummary
	GovInfo     []entities.GovInfo
	Prices      []entities.PricePoint
	Countries   []entities.Country
	Commodities []entities.Commodity
}

// Projector turns normalised facts into index entries
type Projector struct {
	cfg *config.DomainConfig
}

// NewProjector creates a projector
func NewProjector(cfg *config.DomainConfig) *Projector {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &Projector{cfg: cfg}
}

// projection accumulates entries and enforces referential integrity and
// primary key uniqueness while they are added.
type projection struct {
	countries   map[string]struct{}
	commodities map[string]struct{}
	seen        map[EntryID]struct{}
	entries     []IndexEntry
}

func (p *projection) requireCountry(t entities.FactType, name string) error {
	if _, ok := p.countries[name]; !ok {
		return pkgerrors.NewIndexInconsistencyError(
			fmt.Sprintf("%s row references unknown country %q", t, name))
	}
	return nil
}

func (p *projection) requireCommodity(t entities.FactType, name string) error {
	if _, ok := p.commodities[name]; !ok {
		return pkgerrors.NewIndexInconsistencyError(
			fmt.Sprintf("%s row references unknown commodity %q", t, name))
	}
	return nil
}

func (p *projection) add(e IndexEntry) error {
	id := e.ID()
	if _, dup := p.seen[id]; dup {
		return pkgerrors.NewIndexInconsistencyError(
			fmt.Sprintf("duplicate index entry %s at %d", e.Key, e.Sort))
	}
	p.seen[id] = struct{}{}
	p.entries = append(p.entries, e)
	return nil
}

// Project builds the complete index. It is a pure function of in: the same
// input always yields the same entries in the same order. Every source row
// yields exactly one entry, except prices which fold into one series entry
// per commodity.
func (pr *Projector) Project(in Input) ([]IndexEntry, error) {
	p := &projection{
		countries:   make(map[string]struct{}, len(in.Countries)),
		commodities: make(map[string]struct{}, len(in.Commodities)),
		seen:        make(map[EntryID]struct{}),
	}

	for _, c := range in.Countries {
		p.countries[c.Name] = struct{}{}
		if err := p.add(IndexEntry{
			Key:     IndexKey{Type: entities.FactCountry, Country: c.Name},
			Sort:    pr.cfg.DimensionSortKey,
			ByType:  true,
			Payload: Payload{Fields: extract(c, countryFields)},
		}); err != nil {
			return nil, err
		}
	}
	for _, c := range in.Commodities {
		p.commodities[c.Name] = struct{}{}
		if err := p.add(IndexEntry{
			Key:     IndexKey{Type: entities.FactCommodity, Commodity: c.Name},
			Sort:    pr.cfg.DimensionSortKey,
			ByType:  true,
			Payload: Payload{Fields: extract(c, commodityFields)},
		}); err != nil {
			return nil, err
		}
	}

	for _, f := range in.Facts {
		if f.Type != entities.FactProduction && f.Type != entities.FactReserves {
			return nil, pkgerrors.NewIndexInconsistencyError(
				fmt.Sprintf("fact %s has unrankable type %s", f.Key, f.Type))
		}
		if err := p.addKeyed(f.Type, f.Key, extract(f, rankedFactFields)); err != nil {
			return nil, err
		}
	}

	for _, t := range in.Trade {
		if err := p.addKeyed(t.Direction.FactType(), t.Key, extract(t, tradeFields)); err != nil {
			return nil, err
		}
	}

	for _, b := range in.Balances {
		if err := p.requireCountry(entities.FactBalance, b.Country); err != nil {
			return nil, err
		}
		if err := p.add(IndexEntry{
			Key:    CountryKey(entities.FactBalance, b.Country),
			Sort:   b.Year,
			ByType: true,
			Payload: Payload{
				Fields: extract(b, balanceFields),
				Breakdown: map[string]map[string]string{
					BreakdownImports: decimalMap(b.CommodityImports),
					BreakdownExports: decimalMap(b.CommodityExports),
				},
			},
		}); err != nil {
			return nil, err
		}
	}

	for _, g := range in.GovInfo {
		if err := p.requireCommodity(entities.FactGovInfo, g.Commodity); err != nil {
			return nil, err
		}
		if err := p.add(IndexEntry{
			Key:     CommodityKey(entities.FactGovInfo, g.Commodity),
			Sort:    g.Year,
			Payload: Payload{Fields: extract(g, govInfoFields)},
		}); err != nil {
			return nil, err
		}
	}

	if err := pr.projectPrices(p, in.Prices); err != nil {
		return nil, err
	}

	SortEntries(p.entries)
	return p.entries, nil
}

// addKeyed files a (type, year, country, commodity) row under all four paths
func (p *projection) addKeyed(t entities.FactType, k entities.FactKey, fields map[string]string) error {
	if err := p.requireCountry(t, k.Country); err != nil {
		return err
	}
	if err := p.requireCommodity(t, k.Commodity); err != nil {
		return err
	}
	byCountry := CountryKey(t, k.Country)
	byCommodity := CommodityKey(t, k.Commodity)
	return p.add(IndexEntry{
		Key:         PrimaryKey(t, k.Commodity, k.Country),
		Sort:        k.Year,
		ByCountry:   &byCountry,
		ByCommodity: &byCommodity,
		ByType:      true,
		Payload:     Payload{Fields: fields},
	})
}

func (pr *Projector) projectPrices(p *projection, prices []entities.PricePoint) error {
	series := make(map[string][]entities.PricePoint)
	var order []string
	for _, pt := range prices {
		if err := p.requireCommodity(entities.FactPrices, pt.Commodity); err != nil {
			return err
		}
		if _, ok := series[pt.Commodity]; !ok {
			order = append(order, pt.Commodity)
		}
		series[pt.Commodity] = append(series[pt.Commodity], pt)
	}

	for _, commodity := range order {
		points := series[commodity]
		sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

		rows := make([]map[string]string, 0, len(points))
		for i, pt := range points {
			if i > 0 && pt.Date.Equal(points[i-1].Date) {
				return pkgerrors.NewIndexInconsistencyError(
					fmt.Sprintf("duplicate price for %s on %s", commodity, pt.Date.Format(entities.PriceDateLayout)))
			}
			rows = append(rows, extract(pt, pricePointFields))
		}

		if err := p.add(IndexEntry{
			Key:     CommodityKey(entities.FactPrices, commodity),
			Sort:    pr.cfg.PriceSeriesSortKey,
			Payload: Payload{Series: rows},
		}); err != nil {
			return err
		}
	}
	return nil
}

// SortEntries orders entries by type, commodity, country then sort key
func SortEntries(entries []IndexEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return lessEntry(entries[i], entries[j])
	})
}

func lessEntry(a, b IndexEntry) bool {
	if a.Key.Type != b.Key.Type {
		return a.Key.Type < b.Key.Type
	}
	if a.Key.Commodity != b.Key.Commodity {
		return a.Key.Commodity < b.Key.Commodity
	}
	if a.Key.Country != b.Key.Country {
		return a.Key.Country < b.Key.Country
	}
	return a.Sort < b.Sort
}
