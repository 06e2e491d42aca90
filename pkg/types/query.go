package types

import (
	"maps"
	"net/url"
	"slices"
	"strconv"
)

const (
	VarPostType = "post_type"
	VarSearch   = "s"
	VarPage     = "paged"
	VarPerPage  = "posts_per_page"
	VarOrderBy  = "orderby"
	VarOrder    = "order"
)

// PaginationVars are request variables that only shape the result page and
// must never influence a candidate pool.
var PaginationVars = []string{"page", VarPage, VarPerPage, "offset", VarOrderBy, VarOrder, "per_page"}

// RequestUniqueVars never take part in cache keys.
var RequestUniqueVars = []string{"_", "nonce", "_wpnonce", "timestamp", "ts", "action"}

type VisibilityFilter int

const (
	// AnyVisibility returns items regardless of classification.
	AnyVisibility VisibilityFilter = iota
	// VisibleOnly returns items classified public or never classified.
	VisibleOnly
)

// TaxClause matches items carrying any of the term slugs in the taxonomy.
type TaxClause struct {
	Taxonomy string
	Terms    []string
}

// MetaClause matches items whose meta key holds any of the values.
type MetaClause struct {
	Key    string
	Values []string
}

// SourceClause matches items joined to any named source entity of the type.
type SourceClause struct {
	Type  string
	Slugs []string
}

// Query is the query specification handed to a ContentStore. Clauses within a
// slice are AND-ed; values within one clause are OR-ed.
type Query struct {
	PostType         string
	TaxQuery         []TaxClause
	MetaQuery        []MetaClause
	SourceQuery      []SourceClause
	PostIn           *ItemList
	Search           string
	Page             int
	PerPage          int
	Visibility       VisibilityFilter
	IgnoreVisibility bool
	vars             url.Values
}

func NewQuery(postType string) *Query {
	return &Query{
		PostType: postType,
		PerPage:  10,
		vars:     url.Values{},
	}
}

// QueryFromVars seeds a query from plain request variables.
func QueryFromVars(postType string, vars url.Values) *Query {
	q := NewQuery(postType)
	for k, v := range vars {
		q.vars[k] = slices.Clone(v)
	}
	q.Search = vars.Get(VarSearch)
	if p, err := strconv.Atoi(vars.Get(VarPage)); err == nil && p > 0 {
		q.Page = p - 1
	}
	if s, err := strconv.Atoi(vars.Get(VarPerPage)); err == nil && s > 0 {
		q.PerPage = s
	}
	return q
}

// SingleItemQuery fetches one item by id; it is never visibility constrained.
func SingleItemQuery(postType string, id ItemId) *Query {
	q := NewQuery(postType)
	q.PostIn = NewItemList(id)
	q.IgnoreVisibility = true
	return q
}

func (q *Query) Get(field string) string {
	switch field {
	case VarPostType:
		return q.PostType
	case VarSearch:
		return q.Search
	}
	return q.vars.Get(field)
}

func (q *Query) Set(field, value string) {
	switch field {
	case VarPostType:
		q.PostType = value
	case VarSearch:
		q.Search = value
	default:
		if q.vars == nil {
			q.vars = url.Values{}
		}
		q.vars.Set(field, value)
	}
}

// Offset is the index of the first record on the current page.
func (q *Query) Offset() int {
	return max(q.Page, 0) * max(q.PerPage, 0)
}

func (q *Query) Vars() url.Values {
	return maps.Clone(q.vars)
}

func (q *Query) AddTaxClause(taxonomy string, terms []string) {
	q.TaxQuery = append(q.TaxQuery, TaxClause{Taxonomy: taxonomy, Terms: slices.Clone(terms)})
}

func (q *Query) AddMetaClause(key string, values []string) {
	q.MetaQuery = append(q.MetaQuery, MetaClause{Key: key, Values: slices.Clone(values)})
}

func (q *Query) AddSourceClause(sourceType string, slugs []string) {
	q.SourceQuery = append(q.SourceQuery, SourceClause{Type: sourceType, Slugs: slices.Clone(slugs)})
}

// RestrictTo intersects the explicit id allow-list with ids.
func (q *Query) RestrictTo(ids *ItemList) {
	if q.PostIn == nil {
		q.PostIn = ids.Clone()
		return
	}
	q.PostIn.Intersect(ids)
}
