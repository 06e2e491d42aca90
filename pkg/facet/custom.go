package facet

import (
	"context"

	"github.com/matst80/slask-archive/pkg/types"
)

// CustomStrategy adapts plain functions to the Strategy contract.
type CustomStrategy struct {
	Apply   func(q *types.Query, values []string, f *types.Facet)
	Options func(ctx context.Context, args OptionArgs) ([]types.Option, error)
}

func (s *CustomStrategy) ApplyToQuery(q *types.Query, values []string, f *types.Facet) {
	if s.Apply != nil && len(values) > 0 {
		s.Apply(q, values, f)
	}
}

func (s *CustomStrategy) GetOptions(ctx context.Context, args OptionArgs) ([]types.Option, error) {
	if s.Options == nil {
		return []types.Option{}, nil
	}
	return s.Options(ctx, args)
}
