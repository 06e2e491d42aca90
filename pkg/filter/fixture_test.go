package filter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matst80/slask-archive/pkg/storage"
	"github.com/matst80/slask-archive/pkg/types"
	"github.com/stretchr/testify/require"
)

// countingStore records how often the candidate query runs.
type countingStore struct {
	types.ContentStore
	executions atomic.Int32
}

func (s *countingStore) Execute(ctx context.Context, q *types.Query) (*types.ItemList, error) {
	s.executions.Add(1)
	return s.ContentStore.Execute(ctx, q)
}

type sermon struct {
	id      types.ItemId
	topics  []string
	books   []string
	sources []uint32
	year    int
}

func newSermonStore(t *testing.T, sermons ...sermon) *storage.MemoryStore {
	t.Helper()
	s := storage.NewMemoryStore()
	ds := &storage.Dataset{
		Taxonomies:  []string{"topic", "scripture"},
		SourceTypes: []string{"speaker", "series", "service-type"},
		Terms: []storage.TermRecord{
			{Taxonomy: "topic", Slug: "grace", Name: "Grace"},
			{Taxonomy: "topic", Slug: "hope", Name: "Hope"},
			{Taxonomy: "scripture", Slug: "genesis", Name: "Genesis"},
			{Taxonomy: "scripture", Slug: "matthew", Name: "Matthew"},
			{Taxonomy: "scripture", Slug: "john", Name: "John"},
		},
		Sources: []storage.SourceRecord{
			{Id: 100, Type: "speaker", Slug: "anna", Name: "Anna Berg"},
			{Id: 101, Type: "speaker", Slug: "erik", Name: "Erik Lund"},
			{Id: 300, Type: "service-type", Slug: "sunday", Name: "Sunday"},
			{Id: 301, Type: "service-type", Slug: "youth", Name: "Youth"},
		},
	}
	for _, sm := range sermons {
		year := sm.year
		if year == 0 {
			year = 2024
		}
		ds.Items = append(ds.Items, storage.ItemRecord{
			Id:          sm.id,
			PostType:    "sermon",
			Title:       "Sermon",
			Slug:        "sermon",
			PublishedAt: time.Date(year, 3, 1, 10, 0, 0, 0, time.UTC),
			Terms:       map[string][]string{"topic": sm.topics, "scripture": sm.books},
			Sources:     sm.sources,
		})
	}
	require.NoError(t, s.Import(context.Background(), ds))
	return s
}

// graceAndHope is three grace sermons and two hope sermons.
func graceAndHope(t *testing.T) *storage.MemoryStore {
	return newSermonStore(t,
		sermon{id: 1, topics: []string{"grace"}, sources: []uint32{100, 300}},
		sermon{id: 2, topics: []string{"grace"}, sources: []uint32{100, 300}},
		sermon{id: 3, topics: []string{"grace"}, sources: []uint32{101, 301}},
		sermon{id: 4, topics: []string{"hope"}, sources: []uint32{101, 300}},
		sermon{id: 5, topics: []string{"hope"}, sources: []uint32{101, 301}, year: 2023},
	)
}

func newManager(t *testing.T, store types.ContentStore, opts Options) *Manager {
	t.Helper()
	m := NewManager("sermon", store, opts)
	ctx := context.Background()
	_, err := m.RegisterTaxonomyFacet(ctx, "topic", types.FacetConfig{Label: "Topic"})
	require.NoError(t, err)
	_, err = m.RegisterTaxonomyFacet(ctx, "scripture", types.FacetConfig{Label: "Scripture", Order: types.OrderByName})
	require.NoError(t, err)
	_, err = m.RegisterSourceFacet(ctx, "speaker", "speaker", types.FacetConfig{Label: "Speaker"})
	require.NoError(t, err)
	_, err = m.RegisterSourceFacet(ctx, "year", types.YearSource, types.FacetConfig{Label: "Year"})
	require.NoError(t, err)
	m.RegisterContext("service-type", "Service type", ScopeModifier("service-type", "serviceType"))
	return m
}

func values(opts []types.Option) []string {
	ret := make([]string, len(opts))
	for i, o := range opts {
		ret[i] = o.Value
	}
	return ret
}
