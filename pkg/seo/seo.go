package seo

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/matst80/slask-archive/pkg/filter"
	"github.com/matst80/slask-archive/pkg/types"
)

// KnownIntegrations are SEO plugins that render their own canonical and meta tags.
var KnownIntegrations = []string{"yoast", "rank-math", "seopress", "aioseo"}

type Config struct {
	TitleTerms       int
	DescriptionTerms int
	Separator        string
	// ActiveIntegrations lists the SEO integrations running on the site.
	ActiveIntegrations []string
}

// Facets is the part of a filter manager the helper reads.
type Facets interface {
	GetFacets(filter filter.FacetFilter) []*types.Facet
	DisplayValue(ctx context.Context, facetId, value string) string
}

type Helper struct {
	titleTerms       int
	descriptionTerms int
	separator        string
	integration      bool
}

func NewHelper(cfg Config) *Helper {
	h := &Helper{
		titleTerms:       cfg.TitleTerms,
		descriptionTerms: cfg.DescriptionTerms,
		separator:        cfg.Separator,
	}
	if h.titleTerms <= 0 {
		h.titleTerms = 2
	}
	if h.descriptionTerms <= 0 {
		h.descriptionTerms = 3
	}
	if h.separator == "" {
		h.separator = " | "
	}
	for _, name := range cfg.ActiveIntegrations {
		if slices.Contains(KnownIntegrations, strings.ToLower(name)) {
			h.integration = true
		}
	}
	return h
}

// Enabled is false when a recognized SEO integration already renders the tags.
func (h *Helper) Enabled() bool {
	return !h.integration
}

// Meta is what a listing page needs in its head.
type Meta struct {
	Canonical   string `json:"canonical,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

func (h *Helper) Meta(ctx context.Context, m Facets, current *url.URL, active map[string][]string) Meta {
	if !h.Enabled() {
		return Meta{}
	}
	return Meta{
		Canonical:   h.CanonicalURL(m, current),
		Title:       h.FilterTitle(ctx, m, active),
		Description: h.FilterDescription(ctx, m, active),
	}
}

// CanonicalURL strips every facet param (both forms), the search param and
// pagination from current, keeping any other query parameter.
func (h *Helper) CanonicalURL(m Facets, current *url.URL) string {
	if !h.Enabled() || current == nil {
		return ""
	}
	query := current.Query()
	for _, f := range m.GetFacets(filter.FacetFilter{}) {
		query.Del(f.Param)
		query.Del(f.ArrayParam())
	}
	query.Del(types.VarSearch)
	for _, p := range types.PaginationVars {
		query.Del(p)
	}
	canonical := url.URL{
		Scheme:   current.Scheme,
		Host:     current.Host,
		Path:     current.Path,
		RawQuery: query.Encode(),
	}
	return canonical.String()
}

// displayValues resolves the titles of the active values per facet in
// registration order, capped at limit values per facet.
func displayValues(ctx context.Context, m Facets, active map[string][]string, limit int) ([]*types.Facet, [][]string) {
	facets := make([]*types.Facet, 0, len(active))
	titles := make([][]string, 0, len(active))
	for _, f := range m.GetFacets(filter.FacetFilter{}) {
		values := active[f.Id]
		if len(values) == 0 {
			continue
		}
		values = values[:min(limit, len(values))]
		t := make([]string, len(values))
		for i, v := range values {
			t[i] = m.DisplayValue(ctx, f.Id, v)
		}
		facets = append(facets, f)
		titles = append(titles, t)
	}
	return facets, titles
}

// FilterTitle joins up to TitleTerms display values per active facet.
func (h *Helper) FilterTitle(ctx context.Context, m Facets, active map[string][]string) string {
	if !h.Enabled() {
		return ""
	}
	_, titles := displayValues(ctx, m, active, h.titleTerms)
	parts := make([]string, len(titles))
	for i, t := range titles {
		parts[i] = strings.Join(t, ", ")
	}
	return strings.Join(parts, h.separator)
}

// FilterDescription lists up to DescriptionTerms values per facet with the
// facet label, "Topic: Grace, Hope. Speaker: Anna Berg."
func (h *Helper) FilterDescription(ctx context.Context, m Facets, active map[string][]string) string {
	if !h.Enabled() {
		return ""
	}
	facets, titles := displayValues(ctx, m, active, h.descriptionTerms)
	parts := make([]string, len(titles))
	for i, t := range titles {
		parts[i] = facets[i].Label + ": " + strings.Join(t, ", ") + "."
	}
	return strings.Join(parts, " ")
}
