package facet

import (
	"context"
	"errors"
	"testing"

	"github.com/matst80/slask-archive/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postingStore serves fixed postings keyed by kind and name.
type postingStore struct {
	types.ContentStore
	postings map[string][]types.Posting
	err      error
}

func (s *postingStore) Postings(_ context.Context, kind types.FacetKind, name string) ([]types.Posting, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.postings[string(kind)+":"+name], nil
}

func posting(value, title string, ids ...types.ItemId) types.Posting {
	return types.Posting{Id: value, Value: value, Title: title, Items: types.NewItemList(ids...)}
}

func optionValues(opts []types.Option) []string {
	ret := make([]string, len(opts))
	for i, o := range opts {
		ret[i] = o.Value
	}
	return ret
}

func TestAggregateThresholdBoundary(t *testing.T) {
	postings := []types.Posting{
		posting("grace", "Grace", 1, 2, 3),
		posting("hope", "Hope", 4, 5),
	}
	all := types.NewItemList(1, 2, 3, 4, 5)

	opts := Aggregate(postings, all, 3, types.OrderByCount, nil)
	require.Len(t, opts, 1)
	assert.Equal(t, types.Option{Id: "grace", Value: "grace", Title: "Grace", Count: 3}, opts[0])

	opts = Aggregate(postings, all, 2, types.OrderByCount, nil)
	assert.Equal(t, []string{"grace", "hope"}, optionValues(opts))
}

func TestAggregateCountsAgainstCandidates(t *testing.T) {
	postings := []types.Posting{
		posting("grace", "Grace", 1, 2, 3),
		posting("hope", "Hope", 3, 4, 5),
		posting("love", "Love", 9),
	}
	opts := Aggregate(postings, types.NewItemList(3, 4, 5), 1, types.OrderByCount, nil)
	assert.Equal(t, []string{"hope", "grace"}, optionValues(opts))
	assert.Equal(t, 3, opts[0].Count)
	assert.Equal(t, 1, opts[1].Count)
}

func TestSortOptionsTiesByTitle(t *testing.T) {
	opts := []types.Option{
		{Value: "b", Title: "beta", Count: 2},
		{Value: "a", Title: "Alpha", Count: 2},
		{Value: "c", Title: "Gamma", Count: 5},
	}
	SortOptions(opts, types.OrderByCount, nil)
	assert.Equal(t, []string{"c", "a", "b"}, optionValues(opts))

	SortOptions(opts, types.OrderByName, nil)
	assert.Equal(t, []string{"a", "b", "c"}, optionValues(opts))
}

func TestScriptureOrdering(t *testing.T) {
	f := types.NewFacet("scripture", types.FacetConfig{Kind: types.FacetTaxonomy, Taxonomy: ScriptureTaxonomy})
	opts := []types.Option{
		{Value: "matthew", Title: "Matthew"},
		{Value: "apocrypha", Title: "Apocrypha"},
		{Value: "john", Title: "John"},
		{Value: "genesis", Title: "Genesis"},
		{Value: "letters", Title: "Letters"},
		{Value: "1-john", Title: "1 John"},
	}
	SortOptions(opts, types.OrderByName, f)
	assert.Equal(t, []string{"genesis", "apocrypha", "matthew", "john", "letters", "1-john"}, optionValues(opts))
}

func TestCompareScriptureUnmatchedIsUnordered(t *testing.T) {
	genesis := types.Option{Title: "Genesis"}
	john := types.Option{Title: " john "}
	other := types.Option{Title: "Apocrypha"}
	assert.Negative(t, CompareScripture(genesis, john))
	assert.Positive(t, CompareScripture(john, genesis))
	assert.Zero(t, CompareScripture(genesis, other))
	assert.Zero(t, CompareScripture(other, john))
	assert.Zero(t, CompareScripture(other, types.Option{Title: "Letters"}))
}

func TestStrategiesApplyToQuery(t *testing.T) {
	store := &postingStore{}
	q := types.NewQuery("sermon")

	tax := types.NewFacet("topic", types.FacetConfig{Kind: types.FacetTaxonomy, Taxonomy: "topic"})
	NewTaxonomyStrategy(store).ApplyToQuery(q, []string{"grace", "hope"}, tax)
	NewTaxonomyStrategy(store).ApplyToQuery(q, nil, tax)

	meta := types.NewFacet("language", types.FacetConfig{Kind: types.FacetMeta, MetaKey: "language"})
	NewMetaStrategy(store).ApplyToQuery(q, []string{"sv"}, meta)

	src := types.NewFacet("speaker", types.FacetConfig{Kind: types.FacetSource, Source: "speaker"})
	NewSourceStrategy(store).ApplyToQuery(q, []string{"anna"}, src)

	assert.Equal(t, []types.TaxClause{{Taxonomy: "topic", Terms: []string{"grace", "hope"}}}, q.TaxQuery)
	assert.Equal(t, []types.MetaClause{{Key: "language", Values: []string{"sv"}}}, q.MetaQuery)
	assert.Equal(t, []types.SourceClause{{Type: "speaker", Slugs: []string{"anna"}}}, q.SourceQuery)
}

func TestPostingStrategyOptions(t *testing.T) {
	store := &postingStore{postings: map[string][]types.Posting{
		"source:speaker": {posting("anna", "Anna Berg", 1, 2), posting("erik", "Erik Lund", 3)},
	}}
	f := types.NewFacet("speaker", types.FacetConfig{Kind: types.FacetSource, Source: "speaker"})
	s, err := ForKind(types.FacetSource, store)
	require.NoError(t, err)

	opts, err := s.GetOptions(context.Background(), OptionArgs{
		Facet:      f,
		Candidates: types.NewItemList(1, 2, 3),
		Threshold:  1,
		Order:      types.OrderByCount,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"anna", "erik"}, optionValues(opts))

	titler, ok := s.(Titler)
	require.True(t, ok)
	assert.Equal(t, "Erik Lund", titler.DisplayValue(context.Background(), f, "erik"))
	assert.Equal(t, "Unknown Speaker", titler.DisplayValue(context.Background(), f, "unknown-speaker"))

	store.err = errors.New("db down")
	_, err = s.GetOptions(context.Background(), OptionArgs{Facet: f, Candidates: types.NewItemList(1)})
	assert.ErrorIs(t, err, store.err)
}

func TestForKind(t *testing.T) {
	for _, kind := range []types.FacetKind{types.FacetTaxonomy, types.FacetMeta, types.FacetSource} {
		s, err := ForKind(kind, &postingStore{})
		require.NoError(t, err, kind)
		assert.NotNil(t, s)
	}
	_, err := ForKind(types.FacetCustom, &postingStore{})
	assert.Error(t, err)
}

func TestCustomStrategy(t *testing.T) {
	empty := &CustomStrategy{}
	opts, err := empty.GetOptions(context.Background(), OptionArgs{})
	require.NoError(t, err)
	assert.Empty(t, opts)

	applied := 0
	s := &CustomStrategy{
		Apply: func(q *types.Query, values []string, f *types.Facet) { applied += len(values) },
	}
	s.ApplyToQuery(types.NewQuery("sermon"), nil, nil)
	s.ApplyToQuery(types.NewQuery("sermon"), []string{"a", "b"}, nil)
	assert.Equal(t, 2, applied)
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Old Testament", Humanize("old-testament"))
	assert.Equal(t, "Youth Night", Humanize("youth_night"))
	assert.Equal(t, "", Humanize(""))
}

func TestMetaDisplayValueIsRaw(t *testing.T) {
	s := NewMetaStrategy(&postingStore{})
	assert.Equal(t, "sv-SE", s.DisplayValue(context.Background(), nil, "sv-SE"))
}
