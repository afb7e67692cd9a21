package config

import (
	"errors"
	"runtime"
)

// DomainConfig holds the tunable rules of the metrics engine and query layer
type DomainConfig struct {
	// Derived metrics
	SharePrecision int32 // fractional digits kept on world share
	MaxWorkers     int   // concurrent ranking groups

	// Query layer
	DominantShareThreshold float64 // year-only queries keep share strictly above this
	MinYear                int
	MaxYear                int

	// Projection
	PriceSeriesSortKey int // sort key of the single price series entry
	DimensionSortKey   int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		SharePrecision: 10,
		MaxWorkers:     runtime.NumCPU(),

		DominantShareThreshold: 30,
		MinYear:                1900,
		MaxYear:                2100,

		PriceSeriesSortKey: 0,
		DimensionSortKey:   0,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Lambda containers rarely have more than two vCPUs
	config.MaxWorkers = 2

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()
	config.MaxWorkers = 4
	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.SharePrecision < 0 {
		return errors.New("share precision must not be negative")
	}
	if c.MaxWorkers < 1 {
		return errors.New("max workers must be at least 1")
	}
	if c.MinYear > c.MaxYear {
		return errors.New("min year must not exceed max year")
	}
	return nil
}
