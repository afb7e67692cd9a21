package readindex

import (
	"fmt"
	"sort"
	"time"

	"commodities/domain/core/entities"
)

// Snapshot is an immutable, fully built read index. It keeps one explicit
// map per access path; every partition slice is ordered by sort key.
// A Snapshot is never mutated after NewSnapshot returns, so readers share it
// without locking.
type Snapshot struct {
	version string
	builtAt time.Time
	size    int

	primary     map[IndexKey][]IndexEntry
	byCountry   map[IndexKey][]IndexEntry
	byCommodity map[IndexKey][]IndexEntry
	byType      map[entities.FactType][]IndexEntry
}

// NewSnapshot indexes entries under all four paths. Duplicate primary
// identities are rejected.
func NewSnapshot(version string, entries []IndexEntry) (*Snapshot, error) {
	sorted := make([]IndexEntry, len(entries))
	copy(sorted, entries)
	SortEntries(sorted)

	s := &Snapshot{
		version:     version,
		builtAt:     time.Now().UTC(),
		size:        len(sorted),
		primary:     make(map[IndexKey][]IndexEntry),
		byCountry:   make(map[IndexKey][]IndexEntry),
		byCommodity: make(map[IndexKey][]IndexEntry),
		byType:      make(map[entities.FactType][]IndexEntry),
	}

	for i, e := range sorted {
		if i > 0 && sorted[i-1].ID() == e.ID() {
			return nil, fmt.Errorf("duplicate index entry %s at %d", e.Key, e.Sort)
		}
		s.primary[e.Key] = append(s.primary[e.Key], e)
		if e.ByCountry != nil {
			s.byCountry[*e.ByCountry] = append(s.byCountry[*e.ByCountry], e)
		}
		if e.ByCommodity != nil {
			s.byCommodity[*e.ByCommodity] = append(s.byCommodity[*e.ByCommodity], e)
		}
		if e.ByType {
			s.byType[e.Key.Type] = append(s.byType[e.Key.Type], e)
		}
	}

	// secondary partitions mix primary keys, so restore sort-key order
	for _, m := range []map[IndexKey][]IndexEntry{s.byCountry, s.byCommodity} {
		for _, part := range m {
			sortBySortKey(part)
		}
	}
	for _, part := range s.byType {
		sortBySortKey(part)
	}

	return s, nil
}

// EmptySnapshot is served before the first publish
func EmptySnapshot() *Snapshot {
	s, _ := NewSnapshot("", nil)
	return s
}

// Version identifies the rebuild that produced the snapshot
func (s *Snapshot) Version() string { return s.version }

// BuiltAt is when the snapshot was indexed
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Len is the number of entries
func (s *Snapshot) Len() int { return s.size }

// Query returns the entries of one partition, optionally narrowed to a sort
// value. The returned slice is a copy.
func (s *Snapshot) Query(q Query) []IndexEntry {
	var part []IndexEntry
	switch q.Index {
	case IndexPrimary:
		part = s.primary[q.Key]
	case IndexTypeAndCountry:
		part = s.byCountry[q.Key]
	case IndexTypeAndCommodity:
		part = s.byCommodity[q.Key]
	case IndexType:
		part = s.byType[q.Key.Type]
	}

	out := make([]IndexEntry, 0, len(part))
	for _, e := range part {
		if q.Sort != nil && e.Sort != *q.Sort {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Get returns the entry with the given primary identity
func (s *Snapshot) Get(key IndexKey, sortKey int) (IndexEntry, bool) {
	for _, e := range s.primary[key] {
		if e.Sort == sortKey {
			return e, true
		}
	}
	return IndexEntry{}, false
}

// Entries returns every entry in canonical order
func (s *Snapshot) Entries() []IndexEntry {
	out := make([]IndexEntry, 0, s.size)
	for _, part := range s.primary {
		out = append(out, part...)
	}
	SortEntries(out)
	return out
}

func sortBySortKey(part []IndexEntry) {
	sort.SliceStable(part, func(i, j int) bool { return part[i].Sort < part[j].Sort })
}
