package queries

import (
	"fmt"
	"strconv"

	"commodities/domain/core/entities"
	pkgerrors "commodities/pkg/errors"
	"commodities/pkg/utils"
)

// Row is one element of a response data array
type Row map[string]interface{}

func yearKey(y *int) string {
	if y == nil {
		return "-"
	}
	return strconv.Itoa(*y)
}

func validate(q interface{}) error {
	if err := utils.ValidateStruct(q); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	return nil
}

// RankedFactsQuery looks up production or reserves by any supported
// combination of commodity, country and year
type RankedFactsQuery struct {
	Type      entities.FactType `param:"type" validate:"required,oneof=Production Reserves"`
	Commodity string            `param:"commodity" validate:"max=100"`
	Country   string            `param:"country" validate:"max=100"`
	Year      *int              `param:"year" validate:"omitempty,min=1900,max=2100"`
}

// Validate checks field constraints and the parameter combination
func (q RankedFactsQuery) Validate() error {
	if err := validate(q); err != nil {
		return err
	}
	_, err := rankedStrategy(q)
	return err
}

// CacheKey implements bus.CacheKeyer
func (q RankedFactsQuery) CacheKey() string {
	return fmt.Sprintf("%s|%q|%q|%s", q.Type, q.Commodity, q.Country, yearKey(q.Year))
}

// TradeQuery looks up imports or exports. At least two of commodity, country
// and year are required.
type TradeQuery struct {
	Direction entities.TradeDirection `param:"direction" validate:"required,oneof=import export"`
	Commodity string                  `param:"commodity" validate:"max=100"`
	Country   string                  `param:"country" validate:"max=100"`
	Year      *int                    `param:"year" validate:"omitempty,min=1900,max=2100"`
}

// Validate checks field constraints and the parameter count
func (q TradeQuery) Validate() error {
	if err := validate(q); err != nil {
		return err
	}
	_, err := tradeStrategy(q)
	return err
}

// CacheKey implements bus.CacheKeyer
func (q TradeQuery) CacheKey() string {
	return fmt.Sprintf("%s|%q|%q|%s", q.Direction, q.Commodity, q.Country, yearKey(q.Year))
}

// BalanceQuery takes exactly one of country or year
type BalanceQuery struct {
	Country string `param:"country" validate:"max=100"`
	Year    *int   `param:"year" validate:"omitempty,min=1900,max=2100"`
}

// Validate enforces the either-or rule
func (q BalanceQuery) Validate() error {
	if err := validate(q); err != nil {
		return err
	}
	switch {
	case q.Country == "" && q.Year == nil:
		return pkgerrors.NewMissingParameterError("missing required parameter: 'country' or 'year'")
	case q.Country != "" && q.Year != nil:
		return pkgerrors.NewMissingParameterError("parameters 'country' and 'year' are mutually exclusive")
	}
	return nil
}

// CacheKey implements bus.CacheKeyer
func (q BalanceQuery) CacheKey() string {
	return strconv.Quote(q.Country) + "|" + yearKey(q.Year)
}

// PricesQuery returns the ordered price series of a commodity
type PricesQuery struct {
	Commodity string `param:"commodity" validate:"max=100"`
}

// Validate requires a commodity
func (q PricesQuery) Validate() error {
	if err := validate(q); err != nil {
		return err
	}
	if q.Commodity == "" {
		return pkgerrors.NewMissingParameterError("missing required parameter: 'commodity'")
	}
	return nil
}

// GovInfoQuery returns government reports for a commodity, optionally one year
type GovInfoQuery struct {
	Commodity string `param:"commodity" validate:"max=100"`
	Year      *int   `param:"year" validate:"omitempty,min=1900,max=2100"`
}

// Validate requires a commodity
func (q GovInfoQuery) Validate() error {
	if err := validate(q); err != nil {
		return err
	}
	if q.Commodity == "" {
		return pkgerrors.NewMissingParameterError("missing required parameter: 'commodity'")
	}
	return nil
}

// CacheKey implements bus.CacheKeyer
func (q GovInfoQuery) CacheKey() string {
	return strconv.Quote(q.Commodity) + "|" + yearKey(q.Year)
}

// DimensionQuery lists countries or commodities, optionally a single name
type DimensionQuery struct {
	Dimension entities.FactType `param:"dimension" validate:"required,oneof=Country Commodity"`
	Name      string            `param:"name" validate:"max=100"`
}

// Validate checks the dimension tag
func (q DimensionQuery) Validate() error {
	return validate(q)
}
