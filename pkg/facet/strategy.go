package facet

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/matst80/slask-archive/pkg/types"
)

// OptionArgs is everything a strategy needs to aggregate options for one facet.
type OptionArgs struct {
	Facet       *types.Facet
	Context     *types.Context
	ContextArgs map[string]string
	// Candidates holds the ids matching every other active facet.
	Candidates *types.ItemList
	Threshold  int
	Order      types.OptionOrder
}

// Strategy is the kind-specific behaviour bound to a facet at registration.
type Strategy interface {
	ApplyToQuery(q *types.Query, values []string, f *types.Facet)
	GetOptions(ctx context.Context, args OptionArgs) ([]types.Option, error)
}

// Titler resolves a display title for a raw facet value.
type Titler interface {
	DisplayValue(ctx context.Context, f *types.Facet, value string) string
}

// ForKind returns the strategy for a built-in facet kind. Custom facets must
// bring their own strategy.
func ForKind(kind types.FacetKind, store types.ContentStore) (Strategy, error) {
	switch kind {
	case types.FacetTaxonomy:
		return NewTaxonomyStrategy(store), nil
	case types.FacetMeta:
		return NewMetaStrategy(store), nil
	case types.FacetSource:
		return NewSourceStrategy(store), nil
	}
	return nil, fmt.Errorf("no built-in strategy for facet kind %q", kind)
}

// postingStrategy aggregates options from store postings. The concrete kinds
// only differ in which postings they load and how they constrain a query.
type postingStrategy struct {
	store types.ContentStore
	kind  types.FacetKind
	name  func(f *types.Facet) string
}

func (s *postingStrategy) GetOptions(ctx context.Context, args OptionArgs) ([]types.Option, error) {
	name := s.name(args.Facet)
	postings, err := s.store.Postings(ctx, s.kind, name)
	if err != nil {
		return nil, fmt.Errorf("load %s postings for %q: %w", s.kind, name, err)
	}
	return Aggregate(postings, args.Candidates, args.Threshold, args.Order, args.Facet), nil
}

func (s *postingStrategy) DisplayValue(ctx context.Context, f *types.Facet, value string) string {
	postings, err := s.store.Postings(ctx, s.kind, s.name(f))
	if err == nil {
		for _, p := range postings {
			if p.Value == value {
				return p.Title
			}
		}
	}
	return Humanize(value)
}

// Aggregate counts each posting against the candidate pool, drops values
// below threshold and orders the rest.
func Aggregate(postings []types.Posting, candidates *types.ItemList, threshold int, order types.OptionOrder, f *types.Facet) []types.Option {
	ret := make([]types.Option, 0, len(postings))
	for _, p := range postings {
		count := p.Items.IntersectionLen(candidates)
		if count == 0 || count < threshold {
			continue
		}
		ret = append(ret, types.Option{
			Id:    p.Id,
			Value: p.Value,
			Title: p.Title,
			Count: count,
		})
	}
	SortOptions(ret, order, f)
	return ret
}

// Humanize turns a slug into a display title, "old-testament" -> "Old Testament".
func Humanize(slug string) string {
	parts := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, p := range parts {
		r := []rune(p)
		parts[i] = string(unicode.ToUpper(r[0])) + string(r[1:])
	}
	return strings.Join(parts, " ")
}
