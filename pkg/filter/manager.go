package filter

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/matst80/slask-archive/pkg/cache"
	"github.com/matst80/slask-archive/pkg/facet"
	"github.com/matst80/slask-archive/pkg/failure"
	"github.com/matst80/slask-archive/pkg/types"
	"go.uber.org/zap"
)

// DefaultContext is registered on every manager; it applies no modifier.
const DefaultContext = "archive"

const DefaultThreshold = 3

var ErrDuplicateParam = errors.New("facet parameter already in use")

// Constrainer narrows a query to what may be listed, e.g. visible items only.
type Constrainer interface {
	Constrain(q *types.Query)
}

type Options struct {
	Cache      cache.OptionsCache
	Visibility Constrainer
	Logger     *zap.Logger
	TTL        time.Duration
	Threshold  int
	Order      types.OptionOrder
	Debug      bool
}

// Manager owns the facets and contexts of one content type and orchestrates
// query application and option aggregation for it.
type Manager struct {
	mu         sync.RWMutex
	postType   string
	facets     map[string]*types.Facet
	order      []string
	contexts   map[string]*types.Context
	strategies map[string]facet.Strategy

	store      types.ContentStore
	cache      cache.OptionsCache
	visibility Constrainer
	logger     *zap.Logger
	ttl        time.Duration
	threshold  int
	optOrder   types.OptionOrder
	debug      bool
}

func NewManager(postType string, store types.ContentStore, opts Options) *Manager {
	m := &Manager{
		postType:   postType,
		facets:     make(map[string]*types.Facet),
		order:      make([]string, 0),
		contexts:   make(map[string]*types.Context),
		strategies: make(map[string]facet.Strategy),
		store:      store,
		cache:      opts.Cache,
		visibility: opts.Visibility,
		logger:     opts.Logger,
		ttl:        opts.TTL,
		threshold:  opts.Threshold,
		optOrder:   opts.Order,
		debug:      opts.Debug,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("contentType", postType))
	if m.ttl <= 0 {
		m.ttl = cache.DefaultTTL
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	if m.optOrder == "" {
		m.optOrder = types.OrderByCount
	}
	m.contexts[DefaultContext] = &types.Context{Id: DefaultContext, Label: "Archive"}
	return m
}

func (m *Manager) PostType() string {
	return m.postType
}

func (m *Manager) Store() types.ContentStore {
	return m.store
}

// RegisterFacet upserts a facet. A nil strategy selects the built-in one for
// the facet kind. Re-registering an id replaces the previous definition.
func (m *Manager) RegisterFacet(id string, cfg types.FacetConfig, strategy facet.Strategy) (*types.Facet, error) {
	if id == "" {
		return nil, failure.New(failure.MissingParameter, errors.New("facet id is empty")).With("param", "id")
	}
	f := types.NewFacet(id, cfg)
	if strategy == nil {
		s, err := facet.ForKind(f.Kind, m.store)
		if err != nil {
			return nil, failure.New(failure.GeneralError, err).With("facet", id)
		}
		strategy = s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for otherId, other := range m.facets {
		if otherId != id && other.Param == f.Param {
			return nil, failure.New(failure.GeneralError, fmt.Errorf("%w: %s", ErrDuplicateParam, f.Param)).
				With("facet", id).With("conflictsWith", otherId)
		}
	}
	if _, exists := m.facets[id]; !exists {
		m.order = append(m.order, id)
	}
	m.facets[id] = f
	m.strategies[id] = strategy
	return f, nil
}

// RegisterTaxonomyFacet registers a facet over an existing taxonomy. The facet
// id defaults to the taxonomy name.
func (m *Manager) RegisterTaxonomyFacet(ctx context.Context, taxonomy string, cfg types.FacetConfig) (*types.Facet, error) {
	return m.registerTaxonomyFacet(ctx, taxonomy, taxonomy, cfg)
}

func (m *Manager) registerTaxonomyFacet(ctx context.Context, id, taxonomy string, cfg types.FacetConfig) (*types.Facet, error) {
	ok, err := m.store.HasTaxonomy(ctx, taxonomy)
	if err != nil {
		return nil, failure.New(failure.QueryExecutionError, err).With("taxonomy", taxonomy)
	}
	if !ok {
		return nil, failure.New(failure.GeneralError, fmt.Errorf("taxonomy %q does not exist", taxonomy)).With("taxonomy", taxonomy)
	}
	cfg.Kind = types.FacetTaxonomy
	cfg.Taxonomy = taxonomy
	return m.RegisterFacet(id, cfg, nil)
}

func (m *Manager) RegisterMetaFacet(id, metaKey string, cfg types.FacetConfig) (*types.Facet, error) {
	if metaKey == "" {
		return nil, failure.New(failure.MissingParameter, errors.New("meta key is empty")).With("facet", id)
	}
	cfg.Kind = types.FacetMeta
	cfg.MetaKey = metaKey
	return m.RegisterFacet(id, cfg, nil)
}

func (m *Manager) RegisterSourceFacet(ctx context.Context, id, sourceType string, cfg types.FacetConfig) (*types.Facet, error) {
	ok, err := m.store.HasSourceType(ctx, sourceType)
	if err != nil {
		return nil, failure.New(failure.QueryExecutionError, err).With("source", sourceType)
	}
	if !ok {
		return nil, failure.New(failure.GeneralError, fmt.Errorf("source type %q does not exist", sourceType)).With("source", sourceType)
	}
	cfg.Kind = types.FacetSource
	cfg.Source = sourceType
	return m.RegisterFacet(id, cfg, nil)
}

// RegisterContext upserts a named context.
func (m *Manager) RegisterContext(id, label string, modifier types.ContextModifier) *types.Context {
	if label == "" {
		label = id
	}
	c := &types.Context{Id: id, Label: label, Modifier: modifier}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[id] = c
	return c
}

func (m *Manager) GetFacet(id string) *types.Facet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.facets[id]
}

func (m *Manager) GetContext(id string) *types.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contexts[id]
}

func (m *Manager) strategy(id string) facet.Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strategies[id]
}

// FacetFilter selects facets in GetFacets. Nil/empty fields match everything.
type FacetFilter struct {
	Public *bool
	Kind   types.FacetKind
}

// GetFacets lists matching facets in registration order.
func (m *Manager) GetFacets(filter FacetFilter) []*types.Facet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]*types.Facet, 0, len(m.order))
	for _, id := range m.order {
		f := m.facets[id]
		if filter.Public != nil && f.Public != *filter.Public {
			continue
		}
		if filter.Kind != "" && f.Kind != filter.Kind {
			continue
		}
		ret = append(ret, f)
	}
	return ret
}

// Contexts lists the registered contexts sorted by id.
func (m *Manager) Contexts() []*types.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]*types.Context, 0, len(m.contexts))
	for _, id := range slices.Sorted(maps.Keys(m.contexts)) {
		ret = append(ret, m.contexts[id])
	}
	return ret
}

// DisplayValue resolves the display title of a facet value through its
// strategy, falling back to the humanized value.
func (m *Manager) DisplayValue(ctx context.Context, facetId, value string) string {
	f := m.GetFacet(facetId)
	if t, ok := m.strategy(facetId).(facet.Titler); ok && f != nil {
		return t.DisplayValue(ctx, f, value)
	}
	return facet.Humanize(value)
}
