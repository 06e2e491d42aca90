package facet

import (
	"cmp"
	"slices"
	"strings"

	"github.com/matst80/slask-archive/pkg/types"
)

// OptionComparator orders two options when name ordering is requested.
type OptionComparator func(a, b types.Option) int

// nameOrdering is a domain specific name order. Options outside ranked keep
// their input position.
type nameOrdering struct {
	compare OptionComparator
	ranked  func(types.Option) bool
}

// nameOrderings holds taxonomies whose name order is domain specific.
var nameOrderings = map[string]nameOrdering{
	ScriptureTaxonomy: {compare: CompareScripture, ranked: IsScriptureBook},
}

func byCount(a, b types.Option) int {
	if c := cmp.Compare(b.Count, a.Count); c != 0 {
		return c
	}
	return byTitle(a, b)
}

func byTitle(a, b types.Option) int {
	if c := cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
		return c
	}
	return cmp.Compare(a.Value, b.Value)
}

// SortOptions orders by count (descending) or title (ascending). Name order
// uses the facet's canonical ordering when one is registered.
func SortOptions(options []types.Option, order types.OptionOrder, f *types.Facet) {
	if order != types.OrderByName {
		slices.SortStableFunc(options, byCount)
		return
	}
	if f != nil && f.Kind == types.FacetTaxonomy {
		if o, ok := nameOrderings[f.Taxonomy]; ok {
			sortRanked(options, o)
			return
		}
	}
	slices.SortStableFunc(options, byTitle)
}

// sortRanked sorts the ranked options among their own slots and leaves the
// others where they are.
func sortRanked(options []types.Option, o nameOrdering) {
	slots := make([]int, 0, len(options))
	ranked := make([]types.Option, 0, len(options))
	for i, opt := range options {
		if o.ranked(opt) {
			slots = append(slots, i)
			ranked = append(ranked, opt)
		}
	}
	slices.SortStableFunc(ranked, o.compare)
	for i, slot := range slots {
		options[slot] = ranked[i]
	}
}
