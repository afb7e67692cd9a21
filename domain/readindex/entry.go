package readindex

// Payload carries every original field of the projected row as text.
// Breakdown holds nested maps such as per-commodity balance subtotals;
// Series holds ordered rows such as a price history.
type Payload struct {
	Fields    map[string]string            `json:"fields,omitempty"`
	Breakdown map[string]map[string]string `json:"breakdown,omitempty"`
	Series    []map[string]string          `json:"series,omitempty"`
}

// Field returns a single field and whether it is present
func (p Payload) Field(name string) (string, bool) {
	v, ok := p.Fields[name]
	return v, ok
}

// IndexEntry is one row of the read index. Key and Sort form the unique
// primary key; the optional secondary keys enable the other access paths.
type IndexEntry struct {
	Key         IndexKey  `json:"key"`
	Sort        int       `json:"sort"`
	ByCountry   *IndexKey `json:"by_country,omitempty"`
	ByCommodity *IndexKey `json:"by_commodity,omitempty"`
	ByType      bool      `json:"by_type,omitempty"`
	Payload     Payload   `json:"payload"`
}

// KeyFor returns the key this entry is filed under in the given index
func (e IndexEntry) KeyFor(index IndexName) (IndexKey, bool) {
	switch index {
	case IndexPrimary:
		return e.Key, true
	case IndexTypeAndCountry:
		if e.ByCountry != nil {
			return *e.ByCountry, true
		}
	case IndexTypeAndCommodity:
		if e.ByCommodity != nil {
			return *e.ByCommodity, true
		}
	case IndexType:
		if e.ByType {
			return TypeKey(e.Key.Type), true
		}
	}
	return IndexKey{}, false
}

// EntryID is the unique primary identity of an entry
type EntryID struct {
	Key  IndexKey
	Sort int
}

// ID returns the entry's primary identity
func (e IndexEntry) ID() EntryID {
	return EntryID{Key: e.Key, Sort: e.Sort}
}

// Query addresses one partition of one index, optionally narrowed to a sort value
type Query struct {
	Index IndexName
	Key   IndexKey
	Sort  *int
}

// Lookup builds a query without a sort condition
func Lookup(index IndexName, key IndexKey) Query {
	return Query{Index: index, Key: key}
}

// At narrows a query to one sort value
func (q Query) At(sort int) Query {
	q.Sort = &sort
	return q
}
