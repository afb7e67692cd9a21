// Package memory serves the read index from process memory. A published
// index is swapped in as a whole, so readers see either the previous
// snapshot or the new one and never a mix.
package memory

import (
	"context"
	"sync/atomic"

	"commodities/domain/readindex"
	pkgerrors "commodities/pkg/errors"
	"go.uber.org/zap"
)

// IndexStore implements ports.IndexReader and ports.IndexPublisher
type IndexStore struct {
	current atomic.Pointer[readindex.Snapshot]
	logger  *zap.Logger
}

// NewIndexStore creates a store serving the empty snapshot
func NewIndexStore(logger *zap.Logger) *IndexStore {
	s := &IndexStore{logger: logger}
	s.current.Store(readindex.EmptySnapshot())
	return s
}

// Publish indexes entries and swaps them in. On error the previous
// snapshot keeps serving.
func (s *IndexStore) Publish(ctx context.Context, version string, entries []readindex.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := readindex.NewSnapshot(version, entries)
	if err != nil {
		return pkgerrors.NewIndexInconsistencyError(err.Error())
	}

	prev := s.current.Swap(snap)
	s.logger.Info("Read index published",
		zap.String("version", version),
		zap.String("previousVersion", prev.Version()),
		zap.Int("entries", snap.Len()),
	)
	return nil
}

// Query implements ports.IndexReader
func (s *IndexStore) Query(ctx context.Context, q readindex.Query) ([]readindex.IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.current.Load().Query(q), nil
}

// Get implements ports.IndexReader
func (s *IndexStore) Get(ctx context.Context, key readindex.IndexKey, sort int) (readindex.IndexEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return readindex.IndexEntry{}, false, err
	}
	e, ok := s.current.Load().Get(key, sort)
	return e, ok, nil
}

// Version implements ports.IndexReader
func (s *IndexStore) Version(ctx context.Context) (string, error) {
	return s.current.Load().Version(), nil
}

// Snapshot returns the snapshot currently served
func (s *IndexStore) Snapshot() *readindex.Snapshot {
	return s.current.Load()
}
