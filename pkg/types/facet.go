package types

import (
	"html"
	"regexp"
	"slices"
	"strings"
)

type FacetKind string

const (
	FacetTaxonomy FacetKind = "taxonomy"
	FacetMeta     FacetKind = "meta"
	FacetSource   FacetKind = "source"
	FacetCustom   FacetKind = "custom"
)

type OptionOrder string

const (
	OrderByCount OptionOrder = "count"
	OrderByName  OptionOrder = "name"
)

const FacetParamPrefix = "facet-"

// Sanitizer normalizes one raw request value. It must be pure.
type Sanitizer func(raw string) string

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripTags is the default sanitizer: removes markup, decodes entities and
// trims surrounding whitespace.
func StripTags(raw string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(raw, "")))
}

// Facet describes one filterable dimension of a content type.
type Facet struct {
	Id        string      `json:"id" yaml:"id"`
	Label     string      `json:"label" yaml:"label"`
	Param     string      `json:"param" yaml:"param"`
	QueryVar  string      `json:"queryVar" yaml:"queryVar"`
	Kind      FacetKind   `json:"kind" yaml:"kind"`
	Public    bool        `json:"public" yaml:"public"`
	PostTypes []string    `json:"postTypes,omitempty" yaml:"postTypes"`
	Taxonomy  string      `json:"taxonomy,omitempty" yaml:"taxonomy"`
	MetaKey   string      `json:"metaKey,omitempty" yaml:"metaKey"`
	Source    string      `json:"source,omitempty" yaml:"source"`
	Threshold int         `json:"threshold,omitempty" yaml:"threshold"`
	Order     OptionOrder `json:"order,omitempty" yaml:"order"`
	Sanitize  Sanitizer   `json:"-" yaml:"-"`
}

// FacetConfig carries the optional parts of a facet registration. Zero values
// mean "use the default".
type FacetConfig struct {
	Label     string
	Param     string
	QueryVar  string
	Kind      FacetKind
	Hidden    bool
	PostTypes []string
	Taxonomy  string
	MetaKey   string
	Source    string
	Threshold int
	Order     OptionOrder
	Sanitize  Sanitizer
}

// NewFacet builds a facet from id and config, filling in defaults:
// param "facet-<id>", queryVar = id, label = id, kind custom, sanitizer StripTags.
func NewFacet(id string, cfg FacetConfig) *Facet {
	f := &Facet{
		Id:        id,
		Label:     cfg.Label,
		Param:     cfg.Param,
		QueryVar:  cfg.QueryVar,
		Kind:      cfg.Kind,
		Public:    !cfg.Hidden,
		PostTypes: slices.Clone(cfg.PostTypes),
		Taxonomy:  cfg.Taxonomy,
		MetaKey:   cfg.MetaKey,
		Source:    cfg.Source,
		Threshold: cfg.Threshold,
		Order:     cfg.Order,
		Sanitize:  cfg.Sanitize,
	}
	if f.Label == "" {
		f.Label = id
	}
	if f.Param == "" {
		f.Param = FacetParamPrefix + id
	}
	if f.QueryVar == "" {
		f.QueryVar = id
	}
	if f.Kind == "" {
		f.Kind = FacetCustom
	}
	if f.Sanitize == nil {
		f.Sanitize = StripTags
	}
	return f
}

// ArrayParam is the bracketed form of the facet parameter, "param[]".
func (f *Facet) ArrayParam() string {
	return f.Param + "[]"
}

// SupportsPostType reports whether the facet applies to the content type. An
// empty compatibility set means every type.
func (f *Facet) SupportsPostType(postType string) bool {
	return len(f.PostTypes) == 0 || postType == "" || slices.Contains(f.PostTypes, postType)
}

// SanitizeValues runs the sanitizer over raw values, dropping empties and
// duplicates while keeping the request order.
func (f *Facet) SanitizeValues(raw []string) []string {
	sanitize := f.Sanitize
	if sanitize == nil {
		sanitize = StripTags
	}
	ret := make([]string, 0, len(raw))
	for _, v := range raw {
		clean := sanitize(v)
		if clean == "" || slices.Contains(ret, clean) {
			continue
		}
		ret = append(ret, clean)
	}
	return ret
}

// ContextModifier narrows the base candidate query of a context.
type ContextModifier func(q *Query, args map[string]string) *Query

// Context is a named scenario biasing how facet options are computed.
type Context struct {
	Id       string          `json:"id"`
	Label    string          `json:"label"`
	Modifier ContextModifier `json:"-"`
}

func (c *Context) Apply(q *Query, args map[string]string) *Query {
	if c == nil || c.Modifier == nil {
		return q
	}
	if r := c.Modifier(q, args); r != nil {
		return r
	}
	return q
}

// Option is one aggregated facet value.
type Option struct {
	Id    string `json:"id"`
	Value string `json:"value"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

// Posting links a facet value to every item carrying it.
type Posting struct {
	Id    string
	Value string
	Title string
	Items *ItemList
}
