package facet

import "github.com/matst80/slask-archive/pkg/types"

// TaxonomyStrategy filters on term membership and counts terms.
type TaxonomyStrategy struct {
	postingStrategy
}

func NewTaxonomyStrategy(store types.ContentStore) *TaxonomyStrategy {
	return &TaxonomyStrategy{postingStrategy{
		store: store,
		kind:  types.FacetTaxonomy,
		name:  func(f *types.Facet) string { return f.Taxonomy },
	}}
}

// ApplyToQuery adds an IN constraint: any of values within the taxonomy.
func (s *TaxonomyStrategy) ApplyToQuery(q *types.Query, values []string, f *types.Facet) {
	if len(values) == 0 {
		return
	}
	q.AddTaxClause(f.Taxonomy, values)
}
