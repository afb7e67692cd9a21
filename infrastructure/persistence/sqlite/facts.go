package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"commodities/application/ports"
	"commodities/domain/core/entities"
	"commodities/domain/core/valueobjects"
	pkgerrors "commodities/pkg/errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var rankedTables = map[entities.FactType]string{
	entities.FactProduction: "production",
	entities.FactReserves:   "reserves",
}

var tradeTables = map[entities.TradeDirection]string{
	entities.DirectionImport: "imports",
	entities.DirectionExport: "exports",
}

type factRow struct {
	Year      int            `db:"year"`
	Country   string         `db:"country"`
	Commodity string         `db:"commodity"`
	Metric    string         `db:"metric"`
	Amount    string         `db:"amount"`
	Note      sql.NullString `db:"note"`
	Rank      sql.NullInt64  `db:"rank"`
	Share     sql.NullString `db:"share"`
}

func (r factRow) toEntity(t entities.FactType) (entities.Fact, error) {
	f := entities.Fact{
		Type:   t,
		Key:    entities.FactKey{Year: r.Year, Country: r.Country, Commodity: r.Commodity},
		Metric: entities.Metric(r.Metric),
		Amount: valueobjects.ParseAmount(r.Amount),
		Note:   r.Note.String,
	}
	if r.Rank.Valid {
		f.Derived.Rank = entities.IntPtr(int(r.Rank.Int64))
	}
	if r.Share.Valid {
		share, err := valueobjects.NewDecimal(r.Share.String)
		if err != nil {
			return entities.Fact{}, fmt.Errorf("%s %s: bad share %q: %w", t, f.Key, r.Share.String, err)
		}
		f.Derived.Share = &share
	}
	return f, nil
}

func newFactRow(f entities.Fact) factRow {
	r := factRow{
		Year:      f.Key.Year,
		Country:   f.Key.Country,
		Commodity: f.Key.Commodity,
		Metric:    string(f.Metric),
		Amount:    f.Amount.Raw(),
		Note:      sql.NullString{String: f.Note, Valid: f.Note != ""},
	}
	r.Rank, r.Share = derivedColumns(f.Derived)
	return r
}

func derivedColumns(d entities.DerivedStat) (sql.NullInt64, sql.NullString) {
	var rank sql.NullInt64
	var share sql.NullString
	if d.Rank != nil {
		rank = sql.NullInt64{Int64: int64(*d.Rank), Valid: true}
	}
	if d.Share != nil {
		share = sql.NullString{String: d.Share.String(), Valid: true}
	}
	return rank, share
}

func rankedTable(t entities.FactType) (string, error) {
	table, ok := rankedTables[t]
	if !ok {
		return "", pkgerrors.NewValidationError(fmt.Sprintf("fact type %s is not stored as ranked facts", t))
	}
	return table, nil
}

// where renders the filter as a WHERE clause over year, country and commodity
func where(filter ports.FactFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if filter.Year != 0 {
		clauses = append(clauses, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.Country != "" {
		clauses = append(clauses, "country = ?")
		args = append(args, filter.Country)
	}
	if filter.Commodity != "" {
		clauses = append(clauses, "commodity = ?")
		args = append(args, filter.Commodity)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryFacts implements ports.FactStore
func (s *Store) QueryFacts(ctx context.Context, factType entities.FactType, filter ports.FactFilter) ([]entities.Fact, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	table, err := rankedTable(factType)
	if err != nil {
		return nil, err
	}

	clause, args := where(filter)
	rows := []factRow{}
	query := `SELECT year, country, commodity, metric, amount, note, rank, share FROM ` + table + clause +
		` ORDER BY year, commodity, country`
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, pkgerrors.NewDatabaseError("select "+table, err)
	}

	facts := make([]entities.Fact, 0, len(rows))
	for _, r := range rows {
		f, err := r.toEntity(factType)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("decode "+table, err)
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// UpsertFact implements ports.FactStore
func (s *Store) UpsertFact(ctx context.Context, fact entities.Fact) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	table, err := rankedTable(fact.Type)
	if err != nil {
		return err
	}
	query := `INSERT INTO ` + table + ` (year, country, commodity, metric, amount, note, rank, share)
		VALUES (:year, :country, :commodity, :metric, :amount, :note, :rank, :share)
		ON CONFLICT (year, country, commodity) DO UPDATE SET
			metric = excluded.metric,
			amount = excluded.amount,
			note = excluded.note,
			rank = excluded.rank,
			share = excluded.share`
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, newFactRow(fact)); err != nil {
			return pkgerrors.NewDatabaseError("upsert "+table, err)
		}
		return nil
	})
}

// UpdateDerived implements ports.FactStore. Every fact is written in one
// transaction; a missing row aborts the whole write-back.
func (s *Store) UpdateDerived(ctx context.Context, facts []entities.Fact) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if len(facts) == 0 {
		return nil
	}

	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		stmts := make(map[string]*sqlx.Stmt, len(rankedTables))
		defer func() {
			for _, st := range stmts {
				st.Close()
			}
		}()

		for _, f := range facts {
			table, err := rankedTable(f.Type)
			if err != nil {
				return err
			}
			st, ok := stmts[table]
			if !ok {
				st, err = tx.PreparexContext(ctx, `UPDATE `+table+` SET rank = ?, share = ?
					WHERE year = ? AND country = ? AND commodity = ?`)
				if err != nil {
					return pkgerrors.NewDatabaseError("prepare derived update", err)
				}
				stmts[table] = st
			}

			rank, share := derivedColumns(f.Derived)
			res, err := st.ExecContext(ctx, rank, share, f.Key.Year, f.Key.Country, f.Key.Commodity)
			if err != nil {
				return pkgerrors.NewDatabaseError("update derived "+table, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return pkgerrors.NewNotFoundError(fmt.Sprintf("%s fact %s", f.Type, f.Key))
			}
		}

		s.logger.Debug("Derived values written back", zap.Int("facts", len(facts)))
		return nil
	})
}

type tradeRow struct {
	Year      int    `db:"year"`
	Country   string `db:"country"`
	Commodity string `db:"commodity"`
	Amount    string `db:"amount"`
	Share     string `db:"share"`
}

// TradeFacts implements ports.FactStore
func (s *Store) TradeFacts(ctx context.Context, direction entities.TradeDirection, filter ports.FactFilter) ([]entities.TradeFact, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	table, ok := tradeTables[direction]
	if !ok {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("unknown trade direction %q", direction))
	}

	clause, args := where(filter)
	rows := []tradeRow{}
	query := `SELECT year, country, commodity, amount, share FROM ` + table + clause +
		` ORDER BY year, commodity, country`
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, pkgerrors.NewDatabaseError("select "+table, err)
	}

	out := make([]entities.TradeFact, 0, len(rows))
	for _, r := range rows {
		amount, err := valueobjects.NewDecimal(r.Amount)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("decode "+table+" amount", err)
		}
		share, err := valueobjects.NewDecimal(r.Share)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("decode "+table+" share", err)
		}
		out = append(out, entities.TradeFact{
			Direction: direction,
			Key:       entities.FactKey{Year: r.Year, Country: r.Country, Commodity: r.Commodity},
			Amount:    amount,
			Share:     share,
		})
	}
	return out, nil
}

// UpsertTrade implements ports.FactStore
func (s *Store) UpsertTrade(ctx context.Context, fact entities.TradeFact) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if err := fact.Validate(); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	table := tradeTables[fact.Direction]
	row := tradeRow{
		Year:      fact.Key.Year,
		Country:   fact.Key.Country,
		Commodity: fact.Key.Commodity,
		Amount:    fact.Amount.String(),
		Share:     fact.Share.String(),
	}
	query := `INSERT INTO ` + table + ` (year, country, commodity, amount, share)
		VALUES (:year, :country, :commodity, :amount, :share)
		ON CONFLICT (year, country, commodity) DO UPDATE SET
			amount = excluded.amount,
			share = excluded.share`
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return pkgerrors.NewDatabaseError("upsert "+table, err)
		}
		return nil
	})
}

type balanceRow struct {
	Country          string `db:"country"`
	Year             int    `db:"year"`
	TotalImports     string `db:"total_imports"`
	TotalExports     string `db:"total_exports"`
	CommodityImports string `db:"commodity_imports"`
	CommodityExports string `db:"commodity_exports"`
}

func encodeBreakdown(m map[string]valueobjects.Decimal) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeBreakdown(s string) (map[string]valueobjects.Decimal, error) {
	m := make(map[string]valueobjects.Decimal)
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ReplaceBalances implements ports.FactStore
func (s *Store) ReplaceBalances(ctx context.Context, balances []entities.BalanceSummary) error {
	if err := s.ensureReady(); err != nil {
		return err
	}

	rows := make([]balanceRow, 0, len(balances))
	for _, b := range balances {
		imports, err := encodeBreakdown(b.CommodityImports)
		if err != nil {
			return pkgerrors.NewInternalError("encode import breakdown").WithCause(err)
		}
		exports, err := encodeBreakdown(b.CommodityExports)
		if err != nil {
			return pkgerrors.NewInternalError("encode export breakdown").WithCause(err)
		}
		rows = append(rows, balanceRow{
			Country:          b.Country,
			Year:             b.Year,
			TotalImports:     b.TotalImports.String(),
			TotalExports:     b.TotalExports.String(),
			CommodityImports: imports,
			CommodityExports: exports,
		})
	}

	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM balances`); err != nil {
			return pkgerrors.NewDatabaseError("clear balances", err)
		}
		for _, r := range rows {
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO balances
				(country, year, total_imports, total_exports, commodity_imports, commodity_exports)
				VALUES (:country, :year, :total_imports, :total_exports, :commodity_imports, :commodity_exports)`, r); err != nil {
				return pkgerrors.NewDatabaseError("insert balance", err)
			}
		}
		return nil
	})
}

// Balances implements ports.FactStore
func (s *Store) Balances(ctx context.Context) ([]entities.BalanceSummary, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []balanceRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM balances ORDER BY country, year`); err != nil {
		return nil, pkgerrors.NewDatabaseError("select balances", err)
	}

	out := make([]entities.BalanceSummary, 0, len(rows))
	for _, r := range rows {
		b := entities.BalanceSummary{Country: r.Country, Year: r.Year}
		var err error
		if b.TotalImports, err = valueobjects.NewDecimal(r.TotalImports); err != nil {
			return nil, pkgerrors.NewDatabaseError("decode balance", err)
		}
		if b.TotalExports, err = valueobjects.NewDecimal(r.TotalExports); err != nil {
			return nil, pkgerrors.NewDatabaseError("decode balance", err)
		}
		if b.CommodityImports, err = decodeBreakdown(r.CommodityImports); err != nil {
			return nil, pkgerrors.NewDatabaseError("decode balance", err)
		}
		if b.CommodityExports, err = decodeBreakdown(r.CommodityExports); err != nil {
			return nil, pkgerrors.NewDatabaseError("decode balance", err)
		}
		out = append(out, b)
	}
	return out, nil
}
