package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matst80/slask-archive/pkg/cache"
	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/matst80/slask-archive/pkg/facet"
	"github.com/matst80/slask-archive/pkg/failure"
	"github.com/matst80/slask-archive/pkg/filter"
	"github.com/matst80/slask-archive/pkg/seo"
	"github.com/matst80/slask-archive/pkg/storage"
	"github.com/matst80/slask-archive/pkg/types"
	"github.com/matst80/slask-archive/pkg/visibility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testServer struct {
	mux      *http.ServeMux
	store    *storage.MemoryStore
	engine   *visibility.Engine
	auth     *AdminAuth
	registry *filter.Registry
}

func sermonStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	ds := &storage.Dataset{
		Taxonomies:  []string{"topic", "scripture"},
		SourceTypes: []string{"speaker", "series", "service-type"},
		Terms: []storage.TermRecord{
			{Taxonomy: "topic", Slug: "grace", Name: "Grace"},
			{Taxonomy: "topic", Slug: "hope", Name: "Hope"},
		},
		Sources: []storage.SourceRecord{
			{Id: 100, Type: "speaker", Slug: "anna", Name: "Anna Berg"},
			{Id: 101, Type: "speaker", Slug: "erik", Name: "Erik Lund"},
			{Id: 200, Type: "series", Slug: "advent", Name: "Advent"},
			{Id: 300, Type: "service-type", Slug: "sunday", Name: "Sunday"},
			{Id: 301, Type: "service-type", Slug: "youth", Name: "Youth"},
		},
	}
	add := func(id types.ItemId, topic string, day int, sources ...uint32) {
		ds.Items = append(ds.Items, storage.ItemRecord{
			Id:          id,
			PostType:    "sermon",
			Title:       "Sermon",
			Slug:        "sermon",
			PublishedAt: time.Date(2024, 3, day, 10, 0, 0, 0, time.UTC),
			Terms:       map[string][]string{"topic": {topic}},
			Sources:     sources,
		})
	}
	add(1, "grace", 1, 100, 300, 200)
	add(2, "grace", 2, 100, 300)
	add(3, "grace", 3, 101, 301)
	add(4, "hope", 4, 101, 300)
	add(5, "hope", 5, 101, 301)

	s := storage.NewMemoryStore()
	require.NoError(t, s.Import(context.Background(), ds))
	return s
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := sermonStore(t)
	engine := visibility.NewEngine(store, logger)
	optionsCache := cache.NewMemoryCache[[]types.Option]()
	engine.OnSettled(func(ctx context.Context, _ []types.VisibilityChange) {
		optionsCache.Invalidate(ctx)
	})
	registry := filter.DefaultDefinitions("sermon").Build(context.Background(), store, filter.Options{
		Cache:      optionsCache,
		Visibility: engine,
		Logger:     logger,
		Threshold:  1,
	})
	auth := NewAdminAuth(testSecret)
	ws := &WebServer{
		Registry:           registry,
		Engine:             engine,
		Seo:                seo.NewHelper(seo.Config{}),
		Auth:               auth,
		DefaultContentType: "sermon",
		Logger:             logger,
	}
	mux := http.NewServeMux()
	ws.Handle(mux)
	return &testServer{mux: mux, store: store, engine: engine, auth: auth, registry: registry}
}

func (ts *testServer) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, err := ts.auth.CreateToken("editor", AdminRole, time.Hour)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, jsoncompat.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func optionValues(opts []types.Option) []string {
	ret := make([]string, len(opts))
	for i, o := range opts {
		ret[i] = o.Value
	}
	return ret
}

func TestFacetOptionsIgnoresOwnSelection(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/facet-options?facetId=topic&contentType=sermon&facet-topic=grace&selected=grace", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[OptionsResponse](t, rec)
	assert.Equal(t, "facet-topic", res.ParamName)
	assert.Equal(t, "sermon", res.ContentType)
	assert.Equal(t, []string{"grace", "hope"}, optionValues(res.Options))
	assert.Equal(t, 3, res.Options[0].Count)
	assert.Equal(t, 2, res.Options[1].Count)
}

func TestFacetOptionsPostWithContext(t *testing.T) {
	ts := newTestServer(t)
	body := `{"facetId":"speaker","context":"service-type","args":{"serviceType":"youth"},"queryVars":{"facet-topic":["grace"],"paged":2},"contentType":"sermon"}`
	rec := ts.do(t, http.MethodPost, "/api/facet-options", body, "")
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[OptionsResponse](t, rec)
	require.Len(t, res.Options, 1)
	assert.Equal(t, "erik", res.Options[0].Value)
	assert.Equal(t, "Erik Lund", res.Options[0].Title)
	assert.Equal(t, 1, res.Options[0].Count)
}

func TestFacetOptionsGetArgs(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/facet-options?facetId=topic&context=service-type&args.serviceType=youth", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[OptionsResponse](t, rec)
	assert.Equal(t, []string{"grace", "hope"}, optionValues(res.Options))
	assert.Equal(t, 1, res.Options[0].Count)
	assert.Equal(t, 1, res.Options[1].Count)
}

func TestFacetOptionsFailures(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/facet-options?contentType=sermon", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	res := decode[failure.Response](t, rec)
	assert.Equal(t, failure.MissingParameter, res.Code)
	assert.NotContains(t, res.Message, string(failure.MissingParameter))

	rec = ts.do(t, http.MethodGet, "/api/facet-options?facetId=topic&contentType=event", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/facet-options", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, target := range []string{
		"/api/facet-options?facetId=missing",
		"/api/facet-options?facetId=topic&context=missing",
	} {
		rec = ts.do(t, http.MethodGet, target, "", "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Empty(t, decode[OptionsResponse](t, rec).Options, target)
	}
}

func TestFacetOptionsPanickingStrategyDegrades(t *testing.T) {
	ts := newTestServer(t)
	m, ok := ts.registry.Get("sermon")
	require.True(t, ok)
	_, err := m.RegisterFacet("broken", types.FacetConfig{}, &facet.CustomStrategy{
		Options: func(context.Context, facet.OptionArgs) ([]types.Option, error) {
			panic("strategy exploded")
		},
	})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/facet-options?facetId=broken&contentType=sermon", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[OptionsResponse](t, rec)
	assert.NotNil(t, res.Options)
	assert.Empty(t, res.Options)
	assert.Equal(t, "facet-broken", res.ParamName)

	rec = ts.do(t, http.MethodGet, "/api/facet-options?facetId=topic&contentType=sermon", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[OptionsResponse](t, rec).Options)
}

func TestFacetOptionsDebugMessage(t *testing.T) {
	ts := newTestServer(t)
	ws := &WebServer{Registry: filter.NewRegistry(), Logger: zap.NewNop(), Debug: true}
	mux := http.NewServeMux()
	ws.Handle(mux)
	ts.mux = mux

	rec := ts.do(t, http.MethodGet, "/api/facet-options", "", "")
	res := decode[failure.Response](t, rec)
	assert.Contains(t, res.Message, "[missing_parameter]")
}

func TestFacetsListing(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/facets/sermon", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[FacetsResponse](t, rec)
	ids := make([]string, len(res.Facets))
	for i, f := range res.Facets {
		ids[i] = f.Id
	}
	assert.Equal(t, []string{"topic", "scripture", "speaker", "series", "service-type", "year"}, ids)
	assert.Len(t, res.Contexts, 3)
}

func TestArchiveListing(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/archive/sermon?facet-topic=grace&posts_per_page=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[ArchiveResponse](t, rec)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Page)
	require.Len(t, res.Items, 2)
	assert.Equal(t, types.ItemId(3), res.Items[0].Id)
	assert.Equal(t, types.ItemId(2), res.Items[1].Id)
	assert.Equal(t, map[string][]string{"topic": {"grace"}}, res.Facets)
	assert.Equal(t, "/api/archive/sermon", res.Seo.Canonical)
	assert.Equal(t, "Grace", res.Seo.Title)

	rec = ts.do(t, http.MethodGet, "/api/archive/sermon?facet-topic=grace&posts_per_page=2&paged=2", "", "")
	res = decode[ArchiveResponse](t, rec)
	require.Len(t, res.Items, 1)
	assert.Equal(t, types.ItemId(1), res.Items[0].Id)
}

func TestArchiveHidesItemsUnlessAdmin(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.engine.SetVisibility(context.Background(), types.ItemRef(1), false)
	require.NoError(t, err)

	total := func(token string) int {
		rec := ts.do(t, http.MethodGet, "/api/archive/sermon?facet-topic=grace&all=1", "", token)
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[ArchiveResponse](t, rec).Total
	}
	assert.Equal(t, 2, total(""))
	assert.Equal(t, 3, total(ts.adminToken(t)))
	// the bypass is request scoped
	assert.Equal(t, 2, total(""))

	rec := ts.do(t, http.MethodGet, "/api/facet-options?facetId=topic", "", "")
	counts := map[string]int{}
	for _, o := range decode[OptionsResponse](t, rec).Options {
		counts[o.Value] = o.Count
	}
	assert.Equal(t, map[string]int{"grace": 2, "hope": 2}, counts)
}

func TestSingleItemIgnoresVisibility(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.engine.SetVisibility(context.Background(), types.ItemRef(4), false)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/archive/sermon/4", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[ItemResponse](t, rec)
	assert.Equal(t, types.ItemId(4), res.Item.Id)
	assert.Equal(t, types.Hidden, res.Status.State)
	assert.False(t, res.Status.Visible)

	rec = ts.do(t, http.MethodGet, "/api/archive/sermon/99", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/archive/sermon/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/admin/item/1", `{"showInMainList":false}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := NewAdminAuth("other-secret")
	forged, err := other.CreateToken("editor", AdminRole, time.Hour)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodPost, "/admin/item/1", `{"showInMainList":false}`, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	viewer, err := ts.auth.CreateToken("viewer", "viewer", time.Hour)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodPost, "/admin/item/1", `{"showInMainList":false}`, viewer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := ts.auth.CreateToken("editor", AdminRole, -time.Minute)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodPost, "/admin/item/1", `{"showInMainList":false}`, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err = NewAdminAuth("").CreateToken("editor", AdminRole, time.Hour)
	assert.Error(t, err)
}

func TestSaveItem(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)

	rec := ts.do(t, http.MethodPost, "/admin/item/2", `{"showInMainList":false}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	state, err := ts.store.Visibility(context.Background(), types.ItemRef(2))
	require.NoError(t, err)
	assert.Equal(t, types.Hidden, state)

	rec = ts.do(t, http.MethodGet, "/api/archive/sermon?facet-topic=grace", "", "")
	assert.Equal(t, 2, decode[ArchiveResponse](t, rec).Total)

	rec = ts.do(t, http.MethodPost, "/admin/item/99", `{"showInMainList":true}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveContainer(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)

	rec := ts.do(t, http.MethodPost, "/admin/service-type/301", `{"excludeFromMainList":true}`, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/archive/sermon", "", "")
	res := decode[ArchiveResponse](t, rec)
	assert.Equal(t, 3, res.Total)
	for _, item := range res.Items {
		assert.NotContains(t, []types.ItemId{3, 5}, item.Id)
	}

	rec = ts.do(t, http.MethodPost, "/admin/service-type/301", `{"excludeFromMainList":false}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/archive/sermon", "", "")
	assert.Equal(t, 5, decode[ArchiveResponse](t, rec).Total)

	rec = ts.do(t, http.MethodPost, "/admin/series/200/propagate", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/speaker/100", `{"excludeFromMainList":true}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/admin/series/999", `{"excludeFromMainList":true}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	ts.do(t, http.MethodGet, "/api/facet-options?facetId=topic", "", "")
	rec = ts.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "slaskarchive_")
}

func TestPreflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/facet-options", nil)
	req.Header.Set("Origin", "https://church.example")
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "https://church.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
