package facet

import "github.com/matst80/slask-archive/pkg/types"

// SourceStrategy aggregates over a side table of named entities joined to
// items: speakers, series, service types and the virtual year source.
type SourceStrategy struct {
	postingStrategy
}

func NewSourceStrategy(store types.ContentStore) *SourceStrategy {
	return &SourceStrategy{postingStrategy{
		store: store,
		kind:  types.FacetSource,
		name:  func(f *types.Facet) string { return f.Source },
	}}
}

func (s *SourceStrategy) ApplyToQuery(q *types.Query, values []string, f *types.Facet) {
	if len(values) == 0 {
		return
	}
	q.AddSourceClause(f.Source, values)
}
