package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"commodities/domain/core/entities"
	"commodities/domain/core/valueobjects"
	pkgerrors "commodities/pkg/errors"

	"github.com/jmoiron/sqlx"
)

// Countries implements ports.FactStore
func (s *Store) Countries(ctx context.Context) ([]entities.Country, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	type countryRow struct {
		Name        string         `db:"name"`
		IncomeGroup sql.NullString `db:"income_group"`
		EaseOfBiz   sql.NullString `db:"ease_of_biz"`
		GDP         sql.NullString `db:"gdp"`
	}
	rows := []countryRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM countries ORDER BY name`); err != nil {
		return nil, pkgerrors.NewDatabaseError("select countries", err)
	}
	out := make([]entities.Country, 0, len(rows))
	for _, r := range rows {
		out = append(out, entities.Country{
			Name:        r.Name,
			IncomeGroup: r.IncomeGroup.String,
			EaseOfBiz:   r.EaseOfBiz.String,
			GDP:         r.GDP.String,
		})
	}
	return out, nil
}

// UpsertCountry inserts or replaces a country dimension row
func (s *Store) UpsertCountry(ctx context.Context, c entities.Country) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO countries (name, income_group, ease_of_biz, gdp)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET
				income_group = excluded.income_group,
				ease_of_biz = excluded.ease_of_biz,
				gdp = excluded.gdp`,
			c.Name, nullIfEmpty(c.IncomeGroup), nullIfEmpty(c.EaseOfBiz), nullIfEmpty(c.GDP))
		if err != nil {
			return pkgerrors.NewDatabaseError("upsert country", err)
		}
		return nil
	})
}

// Commodities implements ports.FactStore
func (s *Store) Commodities(ctx context.Context) ([]entities.Commodity, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	type commodityRow struct {
		Name      string         `db:"name"`
		Info      sql.NullString `db:"info"`
		Companies string         `db:"companies"`
	}
	rows := []commodityRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM commodities ORDER BY name`); err != nil {
		return nil, pkgerrors.NewDatabaseError("select commodities", err)
	}
	out := make([]entities.Commodity, 0, len(rows))
	for _, r := range rows {
		c := entities.Commodity{Name: r.Name, Info: r.Info.String}
		if err := json.Unmarshal([]byte(r.Companies), &c.Companies); err != nil {
			return nil, pkgerrors.NewDatabaseError("decode companies of "+r.Name, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// UpsertCommodity inserts or replaces a commodity dimension row
func (s *Store) UpsertCommodity(ctx context.Context, c entities.Commodity) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	companies := c.Companies
	if companies == nil {
		companies = []string{}
	}
	encoded, err := json.Marshal(companies)
	if err != nil {
		return pkgerrors.NewInternalError("encode companies").WithCause(err)
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO commodities (name, info, companies)
			VALUES (?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET
				info = excluded.info,
				companies = excluded.companies`,
			c.Name, nullIfEmpty(c.Info), string(encoded))
		if err != nil {
			return pkgerrors.NewDatabaseError("upsert commodity", err)
		}
		return nil
	})
}

// GovInfo implements ports.FactStore
func (s *Store) GovInfo(ctx context.Context) ([]entities.GovInfo, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	out := []entities.GovInfo{}
	if err := s.db.SelectContext(ctx, &out, `SELECT * FROM gov_info ORDER BY commodity, year`); err != nil {
		return nil, pkgerrors.NewDatabaseError("select gov_info", err)
	}
	return out, nil
}

// UpsertGovInfo inserts or replaces a government report
func (s *Store) UpsertGovInfo(ctx context.Context, g entities.GovInfo) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO gov_info
			(year, commodity, prod_and_use, recycling, events, world_resources, substitutes)
			VALUES (:year, :commodity, :prod_and_use, :recycling, :events, :world_resources, :substitutes)
			ON CONFLICT (year, commodity) DO UPDATE SET
				prod_and_use = excluded.prod_and_use,
				recycling = excluded.recycling,
				events = excluded.events,
				world_resources = excluded.world_resources,
				substitutes = excluded.substitutes`, g)
		if err != nil {
			return pkgerrors.NewDatabaseError("upsert gov_info", err)
		}
		return nil
	})
}

type priceRow struct {
	Commodity   string         `db:"commodity"`
	Date        string         `db:"date"`
	Price       string         `db:"price"`
	Description sql.NullString `db:"description"`
}

// Prices implements ports.FactStore
func (s *Store) Prices(ctx context.Context) ([]entities.PricePoint, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []priceRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM prices ORDER BY commodity, date`); err != nil {
		return nil, pkgerrors.NewDatabaseError("select prices", err)
	}
	out := make([]entities.PricePoint, 0, len(rows))
	for _, r := range rows {
		date, err := time.Parse(entities.PriceDateLayout, r.Date)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError(fmt.Sprintf("decode price date of %s", r.Commodity), err)
		}
		price, err := valueobjects.NewDecimal(r.Price)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError(fmt.Sprintf("decode price of %s", r.Commodity), err)
		}
		out = append(out, entities.PricePoint{
			Commodity:   r.Commodity,
			Date:        date,
			Price:       price,
			Description: r.Description.String,
		})
	}
	return out, nil
}

// UpsertPrice inserts or replaces one price observation
func (s *Store) UpsertPrice(ctx context.Context, p entities.PricePoint) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if p.Price.Sign() < 0 {
		return pkgerrors.NewValidationError("price must not be negative")
	}
	row := priceRow{
		Commodity:   p.Commodity,
		Date:        p.Date.Format(entities.PriceDateLayout),
		Price:       p.Price.String(),
		Description: sql.NullString{String: p.Description, Valid: p.Description != ""},
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO prices (commodity, date, price, description)
			VALUES (:commodity, :date, :price, :description)
			ON CONFLICT (commodity, date) DO UPDATE SET
				price = excluded.price,
				description = excluded.description`, row)
		if err != nil {
			return pkgerrors.NewDatabaseError("upsert price", err)
		}
		return nil
	})
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
