package dynamodb

import (
	"context"
	"errors"
	"time"

	"commodities/application/ports"
	"commodities/domain/readindex"
	pkgerrors "commodities/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds configuration for the index read circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the production breaker settings
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// BreakerReader guards an IndexReader with a circuit breaker. Only storage
// failures count against the breaker; a query that is simply invalid does not.
type BreakerReader struct {
	next ports.IndexReader
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerReader wraps next
func NewBreakerReader(next ports.IndexReader, cfg BreakerConfig, logger *zap.Logger) *BreakerReader {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
	})
	return &BreakerReader{next: next, cb: cb}
}

func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !pkgerrors.IsValidation(err) && !pkgerrors.IsNotFound(err)
}

func (b *BreakerReader) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.NewUnavailableError("read index").WithCause(err)
	}
	return err
}

// State reports the breaker state, for readiness probes
func (b *BreakerReader) State() gobreaker.State {
	return b.cb.State()
}

// Query implements ports.IndexReader
func (b *BreakerReader) Query(ctx context.Context, q readindex.Query) ([]readindex.IndexEntry, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Query(ctx, q)
	})
	if err != nil {
		return nil, b.translate(err)
	}
	return out.([]readindex.IndexEntry), nil
}

type getResult struct {
	entry readindex.IndexEntry
	found bool
}

// Get implements ports.IndexReader
func (b *BreakerReader) Get(ctx context.Context, key readindex.IndexKey, sortKey int) (readindex.IndexEntry, bool, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		e, found, err := b.next.Get(ctx, key, sortKey)
		return getResult{entry: e, found: found}, err
	})
	if err != nil {
		return readindex.IndexEntry{}, false, b.translate(err)
	}
	r := out.(getResult)
	return r.entry, r.found, nil
}

// Version implements ports.IndexReader
func (b *BreakerReader) Version(ctx context.Context) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Version(ctx)
	})
	if err != nil {
		return "", b.translate(err)
	}
	return out.(string), nil
}
