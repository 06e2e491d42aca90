package filter

import (
	"context"
	"errors"
	"net/url"
	"slices"

	"github.com/matst80/slask-archive/pkg/cache"
	"github.com/matst80/slask-archive/pkg/facet"
	"github.com/matst80/slask-archive/pkg/failure"
	"github.com/matst80/slask-archive/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	optionRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskarchive_facet_option_requests_total",
		Help: "The total number of facet option requests",
	})
	optionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskarchive_facet_option_failures_total",
		Help: "The total number of facet option requests degraded to an empty list",
	})
)

// OptionsArgs are the request side inputs of an options computation.
type OptionsArgs struct {
	// QueryVars is the current request: other active facets, search and so on.
	QueryVars url.Values
	// ContextArgs feed the context modifier, e.g. the scoped service type.
	ContextArgs map[string]string
}

// GetFilterOptions returns the options of one facet in one context. Every
// failure is logged and degrades to an empty list.
func (m *Manager) GetFilterOptions(ctx context.Context, facetId, contextId string, args OptionsArgs) []types.Option {
	opts, err := m.FilterOptions(ctx, facetId, contextId, args)
	if err != nil {
		optionFailures.Inc()
		failure.Log(m.logger, "facet options degraded to empty", err)
		return []types.Option{}
	}
	return opts
}

// FilterOptions is GetFilterOptions with the typed failure surfaced.
func (m *Manager) FilterOptions(ctx context.Context, facetId, contextId string, args OptionsArgs) (opts []types.Option, err error) {
	optionRequests.Inc()
	defer func() {
		if r := recover(); r != nil {
			opts = nil
			err = failure.FromPanic(r).With("facet", facetId).With("context", contextId)
		}
	}()

	if facetId == "" {
		return nil, failure.New(failure.MissingParameter, errors.New("facet id is empty")).With("param", "facetId")
	}
	if contextId == "" {
		contextId = DefaultContext
	}
	f := m.GetFacet(facetId)
	if f == nil {
		return nil, failure.New(failure.FacetNotFound, nil).With("facet", facetId)
	}
	if !f.SupportsPostType(m.postType) {
		return nil, failure.New(failure.FacetIncompatibleWithContentType, nil).With("facet", facetId).With("postType", m.postType)
	}
	c := m.GetContext(contextId)
	if c == nil {
		return nil, failure.New(failure.ContextNotFound, nil).With("facet", facetId).With("context", contextId)
	}
	strategy := m.strategy(facetId)

	vars := m.candidateVars(f, args.QueryVars)
	key := cache.OptionsKey(facetId, contextId, keyArgs(m.postType, vars, args.ContextArgs))

	opts, hit, err := cache.Remember(ctx, m.cache, key, m.ttl, func() ([]types.Option, error) {
		return m.aggregate(ctx, f, c, strategy, vars, args.ContextArgs)
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debug("facet options",
		zap.String("facet", facetId),
		zap.String("context", contextId),
		zap.Bool("cached", hit),
		zap.Int("options", len(opts)))
	return opts, nil
}

// candidateVars strips the facet's own parameter and every pagination var so
// a facet never narrows its own candidate pool.
func (m *Manager) candidateVars(f *types.Facet, queryVars url.Values) url.Values {
	vars := m.ConvertQueryVarsToFacetParams(queryVars)
	delete(vars, f.Param)
	delete(vars, f.ArrayParam())
	for _, p := range types.PaginationVars {
		delete(vars, p)
	}
	return vars
}

func keyArgs(postType string, vars url.Values, contextArgs map[string]string) url.Values {
	ret := make(url.Values, len(vars)+len(contextArgs)+1)
	for k, v := range vars {
		if slices.Contains(types.RequestUniqueVars, k) {
			continue
		}
		ret[k] = v
	}
	for k, v := range contextArgs {
		ret["context:"+k] = []string{v}
	}
	ret.Set(types.VarPostType, postType)
	return ret
}

func (m *Manager) aggregate(ctx context.Context, f *types.Facet, c *types.Context, strategy facet.Strategy, vars url.Values, contextArgs map[string]string) ([]types.Option, error) {
	q := types.QueryFromVars(m.postType, vars)
	q = c.Apply(q, contextArgs)
	m.ApplyFacetFilters(q, vars)
	if m.visibility != nil {
		m.visibility.Constrain(q)
	}
	candidates, err := m.store.Execute(ctx, q)
	if err != nil {
		return nil, failure.New(failure.QueryExecutionError, err).With("facet", f.Id).With("context", c.Id)
	}

	threshold := f.Threshold
	if threshold <= 0 {
		threshold = m.threshold
	}
	order := f.Order
	if order == "" {
		order = m.optOrder
	}
	opts, err := strategyOptions(ctx, strategy, facet.OptionArgs{
		Facet:       f,
		Context:     c,
		ContextArgs: contextArgs,
		Candidates:  candidates,
		Threshold:   threshold,
		Order:       order,
	})
	if err != nil {
		return nil, failure.New(failure.QueryExecutionError, err).With("facet", f.Id).With("context", c.Id)
	}
	if opts == nil {
		opts = []types.Option{}
	}
	return opts, nil
}

// strategyOptions turns a panicking strategy into an ordinary error so one
// broken facet degrades like any other failed computation.
func strategyOptions(ctx context.Context, strategy facet.Strategy, args facet.OptionArgs) (opts []types.Option, err error) {
	defer func() {
		if r := recover(); r != nil {
			opts = nil
			err = failure.FromPanic(r)
		}
	}()
	return strategy.GetOptions(ctx, args)
}
