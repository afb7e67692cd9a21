package services

import (
	"context"
	"sort"
	"sync"

	"commodities/domain/config"
	"commodities/domain/core/entities"
	"commodities/domain/core/valueobjects"

	"go.uber.org/zap"
)

var hundred = valueobjects.NewDecimalFromInt64(100)

// RankStats summarises one run of the derived metrics engine
type RankStats struct {
	Groups            int `json:"groups"`
	Ranked            int `json:"ranked"`
	Shared            int `json:"shared"`
	ParseFailures     int `json:"parse_failures"`
	MissingWorldTotal int `json:"missing_world_total"`
}

func (s *RankStats) merge(o RankStats) {
	s.Groups += o.Groups
	s.Ranked += o.Ranked
	s.Shared += o.Shared
	s.ParseFailures += o.ParseFailures
	s.MissingWorldTotal += o.MissingWorldTotal
}

// DerivedMetricsEngine computes rank and world share for production and
// reserves facts. Groups are (type, year, commodity) and never share state,
// so they are computed on a bounded pool of goroutines.
type DerivedMetricsEngine struct {
	cfg    *config.DomainConfig
	logger *zap.Logger
}

// NewDerivedMetricsEngine creates an engine
func NewDerivedMetricsEngine(cfg *config.DomainConfig, logger *zap.Logger) *DerivedMetricsEngine {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DerivedMetricsEngine{cfg: cfg, logger: logger}
}

type groupID struct {
	factType entities.FactType
	group    entities.GroupKey
}

// ComputeRankAndShare returns a copy of facts, in input order, with every
// Derived field recomputed from scratch. Prior derived values are ignored.
func (e *DerivedMetricsEngine) ComputeRankAndShare(ctx context.Context, facts []entities.Fact) ([]entities.Fact, RankStats, error) {
	out := make([]entities.Fact, len(facts))
	copy(out, facts)

	var order []groupID
	members := make(map[groupID][]int)
	for i, f := range facts {
		id := groupID{factType: f.Type, group: f.Key.Group()}
		if _, ok := members[id]; !ok {
			order = append(order, id)
		}
		members[id] = append(members[id], i)
	}

	workers := e.cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	perGroup := make([]RankStats, len(order))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for gi, id := range order {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, RankStats{}, err
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(gi int, idx []int) {
			defer wg.Done()
			defer func() { <-sem }()

			rows := make([]entities.Fact, len(idx))
			for j, i := range idx {
				rows[j] = facts[i]
			}
			derived, stats := RankGroup(rows, e.cfg.SharePrecision)
			for j, i := range idx {
				out[i].Derived = derived[j]
			}
			perGroup[gi] = stats
		}(gi, members[id])
	}
	wg.Wait()

	var total RankStats
	for _, s := range perGroup {
		total.merge(s)
	}

	e.logger.Info("Derived metrics computed",
		zap.Int("facts", len(facts)),
		zap.Int("groups", total.Groups),
		zap.Int("ranked", total.Ranked),
		zap.Int("parse_failures", total.ParseFailures),
		zap.Int("missing_world_total", total.MissingWorldTotal),
	)

	return out, total, nil
}

// RankGroup computes derived stats for the rows of a single group.
//
// Pseudo-countries never receive a rank or share. Non-numeric rows are cleared
// and never count against their peers. rank is competition ranking: one plus
// the number of valid peers with a strictly greater amount.
func RankGroup(rows []entities.Fact, precision int32) ([]entities.DerivedStat, RankStats) {
	stats := RankStats{Groups: 1}
	derived := make([]entities.DerivedStat, len(rows))

	var world valueobjects.Decimal
	hasWorld := false
	for _, r := range rows {
		if !valueobjects.IsWorldTotal(r.Key.Country) {
			continue
		}
		if v, ok := r.Amount.Numeric(); ok {
			world, hasWorld = v, true
			break
		}
	}
	if !hasWorld {
		stats.MissingWorldTotal = 1
	}

	valid := make([]valueobjects.Decimal, 0, len(rows))
	for _, r := range rows {
		if r.IsPseudoCountry() {
			continue
		}
		if v, ok := r.Amount.Numeric(); ok {
			valid = append(valid, v)
		}
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Cmp(valid[j]) > 0 })

	for i, r := range rows {
		if r.IsPseudoCountry() {
			continue
		}
		v, ok := r.Amount.Numeric()
		if !ok {
			stats.ParseFailures++
			continue
		}

		// valid is sorted descending: the first position not strictly greater
		// than v is the number of peers above it.
		above := sort.Search(len(valid), func(k int) bool { return valid[k].Cmp(v) <= 0 })
		derived[i].Rank = entities.IntPtr(above + 1)
		stats.Ranked++

		if hasWorld {
			if share, err := v.Div(world); err == nil {
				s := share.Mul(hundred).Round(precision)
				derived[i].Share = &s
				stats.Shared++
			}
		}
	}

	return derived, stats
}
