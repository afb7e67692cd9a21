// Package readindex holds the denormalised read model served by the query
// layer: structured composite keys, index entries, the projector that builds
// them from facts and the immutable snapshot that answers lookups.
package readindex

import (
	"commodities/domain/core/entities"
)

// IndexName selects one of the four access paths
type IndexName string

const (
	// IndexPrimary is keyed by the entity's full natural key
	IndexPrimary IndexName = "Primary"
	// IndexTypeAndCountry is keyed by (type, country)
	IndexTypeAndCountry IndexName = "TypeAndCountryIndex"
	// IndexTypeAndCommodity is keyed by (type, commodity)
	IndexTypeAndCommodity IndexName = "TypeAndCommodityIndex"
	// IndexType is keyed by the bare type tag
	IndexType IndexName = "TypeIndex"
)

// IndexKey is a structured composite key. Empty fields are absent, so
// {Production, Copper, ""} is the (type, commodity) key for copper production.
type IndexKey struct {
	Type      entities.FactType `json:"type"`
	Commodity string            `json:"commodity,omitempty"`
	Country   string            `json:"country,omitempty"`
}

// PrimaryKey is the full natural key of a ranked or trade fact
func PrimaryKey(t entities.FactType, commodity, country string) IndexKey {
	return IndexKey{Type: t, Commodity: commodity, Country: country}
}

// CountryKey is the (type, country) key
func CountryKey(t entities.FactType, country string) IndexKey {
	return IndexKey{Type: t, Country: country}
}

// CommodityKey is the (type, commodity) key
func CommodityKey(t entities.FactType, commodity string) IndexKey {
	return IndexKey{Type: t, Commodity: commodity}
}

// TypeKey is the bare type key
func TypeKey(t entities.FactType) IndexKey {
	return IndexKey{Type: t}
}

// IsZero reports whether the key carries no type
func (k IndexKey) IsZero() bool {
	return k.Type == ""
}

// String renders the key for logs only. Storage encodings live with the store.
func (k IndexKey) String() string {
	s := string(k.Type)
	if k.Commodity != "" {
		s += "/commodity:" + k.Commodity
	}
	if k.Country != "" {
		s += "/country:" + k.Country
	}
	return s
}
