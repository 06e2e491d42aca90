package facet

import (
	"context"

	"github.com/matst80/slask-archive/pkg/types"
)

// MetaStrategy groups by the distinct values of a meta key.
type MetaStrategy struct {
	postingStrategy
}

func NewMetaStrategy(store types.ContentStore) *MetaStrategy {
	return &MetaStrategy{postingStrategy{
		store: store,
		kind:  types.FacetMeta,
		name:  func(f *types.Facet) string { return f.MetaKey },
	}}
}

func (s *MetaStrategy) ApplyToQuery(q *types.Query, values []string, f *types.Facet) {
	if len(values) == 0 {
		return
	}
	q.AddMetaClause(f.MetaKey, values)
}

// DisplayValue for meta facets is the stored value itself.
func (s *MetaStrategy) DisplayValue(_ context.Context, _ *types.Facet, value string) string {
	return value
}
