package filter

import (
	"net/url"
	"slices"

	"github.com/matst80/slask-archive/pkg/failure"
	"github.com/matst80/slask-archive/pkg/types"
)

// requestValues collects both the plain and the bracketed form of a param.
func requestValues(params url.Values, f *types.Facet) []string {
	raw := slices.Clone(params[f.Param])
	return append(raw, params[f.ArrayParam()]...)
}

// GetActiveFacetsFromRequest returns the sanitized values of every facet
// present in params. Facets whose values all sanitize to empty are left out.
func (m *Manager) GetActiveFacetsFromRequest(params url.Values) map[string][]string {
	active := make(map[string][]string)
	for _, f := range m.GetFacets(FacetFilter{}) {
		raw := requestValues(params, f)
		if len(raw) == 0 {
			continue
		}
		if values := f.SanitizeValues(raw); len(values) > 0 {
			active[f.Id] = values
		}
	}
	return active
}

// ApplyFacetFilters narrows q by every active facet compatible with its
// content type and returns what was applied. A panicking strategy is logged
// and skipped.
func (m *Manager) ApplyFacetFilters(q *types.Query, params url.Values) map[string][]string {
	active := m.GetActiveFacetsFromRequest(params)
	applied := make(map[string][]string, len(active))
	for id, values := range active {
		f := m.GetFacet(id)
		if !f.SupportsPostType(q.PostType) {
			failure.Log(m.logger, "facet skipped",
				failure.New(failure.FacetIncompatibleWithContentType, nil).With("facet", id).With("postType", q.PostType))
			continue
		}
		if err := m.applyOne(q, f, values); err != nil {
			failure.Log(m.logger, "facet filter failed", err)
			continue
		}
		applied[id] = values
	}
	return applied
}

func (m *Manager) applyOne(q *types.Query, f *types.Facet, values []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failure.FromPanic(r).With("facet", f.Id)
		}
	}()
	s := m.strategy(f.Id)
	if s == nil {
		return failure.New(failure.FacetNotFound, nil).With("facet", f.Id)
	}
	s.ApplyToQuery(q, values, f)
	return nil
}

// ConvertQueryVarsToFacetParams rewrites internal field names (a facet's
// queryVar) to its public param. Values already present under the param win.
func (m *Manager) ConvertQueryVarsToFacetParams(vars url.Values) url.Values {
	ret := make(url.Values, len(vars))
	for k, v := range vars {
		ret[k] = slices.Clone(v)
	}
	for _, f := range m.GetFacets(FacetFilter{}) {
		if f.QueryVar == "" || f.QueryVar == f.Param || f.QueryVar == types.VarSearch {
			continue
		}
		moved := make([]string, 0)
		for _, name := range []string{f.QueryVar, f.QueryVar + "[]"} {
			moved = append(moved, ret[name]...)
			delete(ret, name)
		}
		if len(moved) > 0 && len(requestValues(ret, f)) == 0 {
			ret[f.ArrayParam()] = moved
		}
	}
	return ret
}

// EncodeActiveFacets renders active selections back into request parameters:
// "param=v" for one value, "param[]=v1&param[]=v2" for several.
func EncodeActiveFacets(facets []*types.Facet, active map[string][]string) url.Values {
	ret := url.Values{}
	for _, f := range facets {
		values := active[f.Id]
		switch len(values) {
		case 0:
		case 1:
			ret.Set(f.Param, values[0])
		default:
			ret[f.ArrayParam()] = slices.Clone(values)
		}
	}
	return ret
}

func (m *Manager) EncodeActiveFacets(active map[string][]string) url.Values {
	return EncodeActiveFacets(m.GetFacets(FacetFilter{}), active)
}
