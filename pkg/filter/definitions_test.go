package filter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/matst80/slask-archive/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const definitionsYaml = `
contentTypes:
  sermon:
    threshold: 1
    order: name
    facets:
      - id: topic
        kind: taxonomy
        label: Topic
      - id: preacher
        kind: source
        source: speaker
        param: speaker
        label: Preacher
      - id: book
        kind: taxonomy
        taxonomy: book
      - id: language
        kind: meta
        metaKey: language
        hidden: true
    contexts:
      - id: service-type
        label: Service type
        scope:
          source: service-type
          arg: serviceType
`

func TestParseDefinitions(t *testing.T) {
	defs, err := ParseDefinitions([]byte(definitionsYaml))
	require.NoError(t, err)
	ct := defs.ContentTypes["sermon"]
	assert.Equal(t, 1, ct.Threshold)
	assert.Equal(t, types.OrderByName, ct.Order)
	require.Len(t, ct.Facets, 4)
	assert.Equal(t, "speaker", ct.Facets[1].Source)
	require.NotNil(t, ct.Contexts[0].Scope)
	assert.Equal(t, "serviceType", ct.Contexts[0].Scope.Arg)
}

func TestParseDefinitionsRejectsBadFacets(t *testing.T) {
	_, err := ParseDefinitions([]byte("contentTypes:\n  sermon:\n    facets:\n      - kind: taxonomy\n"))
	assert.Error(t, err)
	_, err = ParseDefinitions([]byte("contentTypes:\n  sermon:\n    facets:\n      - id: x\n        kind: custom\n"))
	assert.Error(t, err)
	_, err = ParseDefinitions([]byte("contentTypes: ["))
	assert.Error(t, err)
}

func TestLoadDefinitionsAndBuild(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "facets.yaml")
	require.NoError(t, os.WriteFile(fileName, []byte(definitionsYaml), 0o644))
	defs, err := LoadDefinitions(fileName)
	require.NoError(t, err)

	registry := defs.Build(context.Background(), graceAndHope(t), Options{Logger: zap.NewNop()})
	m, ok := registry.Get("sermon")
	require.True(t, ok)

	assert.NotNil(t, m.GetFacet("topic"))
	assert.Nil(t, m.GetFacet("book"), "missing taxonomy is skipped")
	preacher := m.GetFacet("preacher")
	require.NotNil(t, preacher)
	assert.Equal(t, "speaker", preacher.Param)
	assert.False(t, m.GetFacet("language").Public)

	opts := m.GetFilterOptions(context.Background(), "topic", "service-type", OptionsArgs{
		ContextArgs: map[string]string{"serviceType": "sunday"},
	})
	assert.Equal(t, []string{"grace", "hope"}, values(opts))
	assert.Equal(t, []int{2, 1}, []int{opts[0].Count, opts[1].Count})
}

func TestDefaultDefinitions(t *testing.T) {
	registry := DefaultDefinitions("sermon").Build(context.Background(), graceAndHope(t), Options{})
	m, ok := registry.Get("sermon")
	require.True(t, ok)
	ids := []string{}
	for _, f := range m.GetFacets(FacetFilter{}) {
		ids = append(ids, f.Id)
	}
	assert.Equal(t, []string{"topic", "scripture", "speaker", "series", "service-type", "year"}, ids)
	assert.Equal(t, types.OrderByName, m.GetFacet("scripture").Order)
	assert.NotNil(t, m.GetContext("series"))
}

func TestScopeModifierWithoutArgument(t *testing.T) {
	q := types.NewQuery("sermon")
	ScopeModifier("series", "series")(q, map[string]string{})
	assert.Empty(t, q.SourceQuery)
}
