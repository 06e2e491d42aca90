package filter

import (
	"context"
	"fmt"
	"os"

	"github.com/matst80/slask-archive/pkg/facet"
	"github.com/matst80/slask-archive/pkg/failure"
	"github.com/matst80/slask-archive/pkg/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FacetDefinition is one facet entry of the definitions file.
type FacetDefinition struct {
	Id        string            `yaml:"id"`
	Label     string            `yaml:"label"`
	Param     string            `yaml:"param"`
	QueryVar  string            `yaml:"queryVar"`
	Kind      types.FacetKind   `yaml:"kind"`
	Hidden    bool              `yaml:"hidden"`
	PostTypes []string          `yaml:"postTypes"`
	Taxonomy  string            `yaml:"taxonomy"`
	MetaKey   string            `yaml:"metaKey"`
	Source    string            `yaml:"source"`
	Threshold int               `yaml:"threshold"`
	Order     types.OptionOrder `yaml:"order"`
}

// ScopeDefinition restricts a context's candidates to the source value named
// by a context argument.
type ScopeDefinition struct {
	Source string `yaml:"source"`
	Arg    string `yaml:"arg"`
}

type ContextDefinition struct {
	Id    string           `yaml:"id"`
	Label string           `yaml:"label"`
	Scope *ScopeDefinition `yaml:"scope"`
}

type ContentTypeDefinition struct {
	Threshold int                 `yaml:"threshold"`
	Order     types.OptionOrder   `yaml:"order"`
	Facets    []FacetDefinition   `yaml:"facets"`
	Contexts  []ContextDefinition `yaml:"contexts"`
}

// Definitions maps content type to its facets and contexts.
type Definitions struct {
	ContentTypes map[string]ContentTypeDefinition `yaml:"contentTypes"`
}

func LoadDefinitions(fileName string) (*Definitions, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("read facet definitions: %w", err)
	}
	return ParseDefinitions(data)
}

func ParseDefinitions(data []byte) (*Definitions, error) {
	defs := &Definitions{}
	if err := yaml.Unmarshal(data, defs); err != nil {
		return nil, fmt.Errorf("parse facet definitions: %w", err)
	}
	for postType, ct := range defs.ContentTypes {
		for i, f := range ct.Facets {
			if f.Id == "" {
				return nil, fmt.Errorf("content type %s: facet %d has no id", postType, i)
			}
			switch f.Kind {
			case types.FacetTaxonomy, types.FacetMeta, types.FacetSource:
			default:
				return nil, fmt.Errorf("content type %s: facet %s has unsupported kind %q", postType, f.Id, f.Kind)
			}
		}
	}
	return defs, nil
}

// ScopeModifier narrows candidates to the source slug found in args[arg].
// Without the argument the query is left untouched.
func ScopeModifier(source, arg string) types.ContextModifier {
	return func(q *types.Query, args map[string]string) *types.Query {
		if v := args[arg]; v != "" {
			q.AddSourceClause(source, []string{v})
		}
		return q
	}
}

func (d FacetDefinition) config() types.FacetConfig {
	return types.FacetConfig{
		Label:     d.Label,
		Param:     d.Param,
		QueryVar:  d.QueryVar,
		Hidden:    d.Hidden,
		PostTypes: d.PostTypes,
		Threshold: d.Threshold,
		Order:     d.Order,
	}
}

// Register applies one definition to the manager through the regular upserts.
func (d FacetDefinition) Register(ctx context.Context, m *Manager) (*types.Facet, error) {
	cfg := d.config()
	switch d.Kind {
	case types.FacetTaxonomy:
		taxonomy := d.Taxonomy
		if taxonomy == "" {
			taxonomy = d.Id
		}
		return m.registerTaxonomyFacet(ctx, d.Id, taxonomy, cfg)
	case types.FacetMeta:
		return m.RegisterMetaFacet(d.Id, d.MetaKey, cfg)
	case types.FacetSource:
		source := d.Source
		if source == "" {
			source = d.Id
		}
		return m.RegisterSourceFacet(ctx, d.Id, source, cfg)
	}
	return nil, failure.New(failure.GeneralError, fmt.Errorf("unsupported facet kind %q", d.Kind)).With("facet", d.Id)
}

// Build creates one manager per content type. Facets over missing taxonomies
// or source types are logged and skipped.
func (d *Definitions) Build(ctx context.Context, store types.ContentStore, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := NewRegistry()
	for postType, ct := range d.ContentTypes {
		mOpts := opts
		if ct.Threshold > 0 {
			mOpts.Threshold = ct.Threshold
		}
		if ct.Order != "" {
			mOpts.Order = ct.Order
		}
		m := NewManager(postType, store, mOpts)
		for _, fd := range ct.Facets {
			if _, err := fd.Register(ctx, m); err != nil {
				failure.Log(logger, "facet not registered", failure.From(err).With("facet", fd.Id).With("contentType", postType))
			}
		}
		for _, cd := range ct.Contexts {
			var modifier types.ContextModifier
			if cd.Scope != nil {
				modifier = ScopeModifier(cd.Scope.Source, cd.Scope.Arg)
			}
			m.RegisterContext(cd.Id, cd.Label, modifier)
		}
		registry.Add(m)
	}
	return registry
}

// DefaultDefinitions are the sermon archive facets used when no file is configured.
func DefaultDefinitions(postType string) *Definitions {
	return &Definitions{ContentTypes: map[string]ContentTypeDefinition{
		postType: {
			Facets: []FacetDefinition{
				{Id: "topic", Label: "Topic", Kind: types.FacetTaxonomy, Taxonomy: "topic"},
				{Id: "scripture", Label: "Scripture", Kind: types.FacetTaxonomy, Taxonomy: facet.ScriptureTaxonomy, Order: types.OrderByName},
				{Id: "speaker", Label: "Speaker", Kind: types.FacetSource, Source: "speaker"},
				{Id: "series", Label: "Series", Kind: types.FacetSource, Source: string(types.EntitySeries)},
				{Id: "service-type", Label: "Service type", Kind: types.FacetSource, Source: string(types.EntityServiceType)},
				{Id: "year", Label: "Year", Kind: types.FacetSource, Source: types.YearSource, Order: types.OrderByName},
			},
			Contexts: []ContextDefinition{
				{Id: "service-type", Label: "Service type", Scope: &ScopeDefinition{Source: string(types.EntityServiceType), Arg: "serviceType"}},
				{Id: "series", Label: "Series", Scope: &ScopeDefinition{Source: string(types.EntitySeries), Arg: "series"}},
			},
		},
	}}
}
