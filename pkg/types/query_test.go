package types

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryFromVars(t *testing.T) {
	vars := url.Values{
		VarSearch:  {"grace"},
		VarPage:    {"3"},
		VarPerPage: {"20"},
		"series":   {"advent"},
	}
	q := QueryFromVars("sermon", vars)
	assert.Equal(t, "sermon", q.Get(VarPostType))
	assert.Equal(t, "grace", q.Get(VarSearch))
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 20, q.PerPage)
	assert.Equal(t, "advent", q.Get("series"))

	vars.Set("series", "lent")
	assert.Equal(t, "advent", q.Get("series"))
}

func TestQueryDefaultsOnBadPaging(t *testing.T) {
	q := QueryFromVars("sermon", url.Values{VarPage: {"-1"}, VarPerPage: {"many"}})
	assert.Equal(t, 0, q.Page)
	assert.Equal(t, 10, q.PerPage)
}

func TestQuerySetAndVars(t *testing.T) {
	q := NewQuery("sermon")
	q.Set(VarPostType, "page")
	q.Set(VarSearch, "hope")
	q.Set("speaker", "anna")
	assert.Equal(t, "page", q.PostType)
	assert.Equal(t, "hope", q.Search)

	vars := q.Vars()
	assert.Equal(t, "anna", vars.Get("speaker"))
	vars.Set("speaker", "erik")
	assert.Equal(t, "anna", q.Get("speaker"))
}

func TestZeroQuerySet(t *testing.T) {
	q := &Query{}
	q.Set("speaker", "anna")
	assert.Equal(t, "anna", q.Get("speaker"))
	assert.Equal(t, "anna", q.Vars().Get("speaker"))
}

func TestQueryOffset(t *testing.T) {
	q := QueryFromVars("sermon", url.Values{VarPage: {"3"}, VarPerPage: {"20"}})
	assert.Equal(t, 40, q.Offset())
	assert.Equal(t, 0, (&Query{}).Offset())
}

func TestSingleItemQuery(t *testing.T) {
	q := SingleItemQuery("sermon", 42)
	assert.True(t, q.IgnoreVisibility)
	assert.Equal(t, []ItemId{42}, q.PostIn.Ids())
}

func TestRestrictTo(t *testing.T) {
	q := NewQuery("sermon")
	allowed := NewItemList(1, 2, 3)
	q.RestrictTo(allowed)
	q.RestrictTo(NewItemList(2, 3, 4))
	assert.Equal(t, []ItemId{2, 3}, q.PostIn.Ids())
	assert.Equal(t, []ItemId{1, 2, 3}, allowed.Ids())
}

func TestFacetDefaults(t *testing.T) {
	f := NewFacet("topic", FacetConfig{})
	assert.Equal(t, "facet-topic", f.Param)
	assert.Equal(t, "facet-topic[]", f.ArrayParam())
	assert.Equal(t, "topic", f.QueryVar)
	assert.Equal(t, "topic", f.Label)
	assert.Equal(t, FacetCustom, f.Kind)
	assert.True(t, f.Public)
	assert.True(t, f.SupportsPostType("anything"))

	scoped := NewFacet("speaker", FacetConfig{PostTypes: []string{"sermon"}, Hidden: true})
	assert.False(t, scoped.Public)
	assert.True(t, scoped.SupportsPostType("sermon"))
	assert.False(t, scoped.SupportsPostType("page"))
}

func TestSanitizeValues(t *testing.T) {
	f := NewFacet("topic", FacetConfig{})
	assert.Equal(t, []string{"grace", "hope & love"},
		f.SanitizeValues([]string{" <b>grace</b> ", "grace", "", "<i></i>", "hope &amp; love"}))
}

func TestVisibilityState(t *testing.T) {
	assert.True(t, Unclassified.Visible())
	assert.True(t, Public.Visible())
	assert.False(t, Hidden.Visible())
	assert.Equal(t, Hidden, StateFor(false))
	assert.Equal(t, Public, ParseVisibilityState("public"))
	assert.Equal(t, Unclassified, ParseVisibilityState("draft"))
	assert.True(t, EntitySeries.IsContainer())
	assert.False(t, EntityItem.IsContainer())
}
