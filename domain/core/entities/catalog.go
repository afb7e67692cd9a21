package entities

import (
	"time"

	"commodities/domain/core/valueobjects"
)

// Country is a row of the country dimension. Pseudo-countries are ordinary rows.
type Country struct {
	Name        string `json:"name" db:"name"`
	IncomeGroup string `json:"income_group,omitempty" db:"income_group"`
	EaseOfBiz   string `json:"ease_of_biz,omitempty" db:"ease_of_biz"`
	GDP         string `json:"gdp,omitempty" db:"gdp"`
}

// Commodity is a row of the commodity dimension
type Commodity struct {
	Name      string   `json:"name"`
	Info      string   `json:"info,omitempty"`
	Companies []string `json:"companies,omitempty"`
}

// GovInfo is a government narrative report for a commodity and year
type GovInfo struct {
	Year           int    `json:"year" db:"year"`
	Commodity      string `json:"commodity" db:"commodity"`
	ProdAndUse     string `json:"prod_and_use" db:"prod_and_use"`
	Recycling      string `json:"recycling" db:"recycling"`
	Events         string `json:"events" db:"events"`
	WorldResources string `json:"world_resources" db:"world_resources"`
	Substitutes    string `json:"substitutes" db:"substitutes"`
}

// PricePoint is one observation of a commodity price series
type PricePoint struct {
	Commodity   string
	Date        time.Time
	Price       valueobjects.Decimal
	Description string
}

// PriceDateLayout is the rendering used in the read index
const PriceDateLayout = "2006-01-02"
