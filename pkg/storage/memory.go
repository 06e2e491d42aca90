package storage

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/matst80/slask-archive/pkg/types"
)

type memItem struct {
	ItemRecord
	visibility types.VisibilityState
}

type memSource struct {
	SourceRecord
	visibility types.VisibilityState
}

// MemoryStore keeps the whole archive in maps. It backs tests and the
// dataset-only serve mode.
type MemoryStore struct {
	mu          sync.RWMutex
	taxonomies  map[string]map[string]TermRecord
	termIds     map[string]uint32
	sourceTypes map[string]struct{}
	sources     map[uint32]*memSource
	items       map[types.ItemId]*memItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		taxonomies:  make(map[string]map[string]TermRecord),
		termIds:     make(map[string]uint32),
		sourceTypes: make(map[string]struct{}),
		sources:     make(map[uint32]*memSource),
		items:       make(map[types.ItemId]*memItem),
	}
}

func (m *MemoryStore) Import(_ context.Context, ds *Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range ds.Taxonomies {
		m.addTaxonomy(t)
	}
	for _, s := range ds.SourceTypes {
		m.sourceTypes[s] = struct{}{}
	}
	for _, t := range ds.Terms {
		m.addTerm(t)
	}
	for _, s := range ds.Sources {
		m.sourceTypes[s.Type] = struct{}{}
		m.sources[s.Id] = &memSource{SourceRecord: s}
	}
	for _, item := range ds.Items {
		m.addItem(item)
	}
	return nil
}

// Export dumps the store as a dataset, sorted by id.
func (m *MemoryStore) Export(_ context.Context) (*Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds := &Dataset{
		Taxonomies:  slices.Sorted(maps.Keys(m.taxonomies)),
		SourceTypes: slices.Sorted(maps.Keys(m.sourceTypes)),
	}
	for _, tax := range ds.Taxonomies {
		terms := m.taxonomies[tax]
		for _, slug := range slices.Sorted(maps.Keys(terms)) {
			ds.Terms = append(ds.Terms, terms[slug])
		}
	}
	for _, id := range slices.Sorted(maps.Keys(m.sources)) {
		ds.Sources = append(ds.Sources, m.sources[id].SourceRecord)
	}
	for _, id := range slices.Sorted(maps.Keys(m.items)) {
		ds.Items = append(ds.Items, m.items[id].ItemRecord)
	}
	return ds, nil
}

func (m *MemoryStore) addTaxonomy(name string) map[string]TermRecord {
	terms, ok := m.taxonomies[name]
	if !ok {
		terms = make(map[string]TermRecord)
		m.taxonomies[name] = terms
	}
	return terms
}

func (m *MemoryStore) addTerm(t TermRecord) {
	terms := m.addTaxonomy(t.Taxonomy)
	key := t.Taxonomy + "/" + t.Slug
	if _, ok := m.termIds[key]; !ok {
		m.termIds[key] = uint32(len(m.termIds) + 1)
	}
	terms[t.Slug] = t
}

func (m *MemoryStore) AddTaxonomy(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addTaxonomy(name)
}

func (m *MemoryStore) AddTerm(t TermRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addTerm(t)
}

func (m *MemoryStore) AddSource(s SourceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sourceTypes[s.Type] = struct{}{}
	m.sources[s.Id] = &memSource{SourceRecord: s}
}

func (m *MemoryStore) AddItem(item ItemRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addItem(item)
}

func (m *MemoryStore) addItem(item ItemRecord) {
	for tax, slugs := range item.Terms {
		terms := m.addTaxonomy(tax)
		for _, slug := range slugs {
			if _, ok := terms[slug]; !ok {
				m.addTerm(TermRecord{Taxonomy: tax, Slug: slug, Name: slug})
			}
		}
	}
	m.items[item.Id] = &memItem{ItemRecord: item}
}

func (m *MemoryStore) matches(item *memItem, q *types.Query) bool {
	if q.PostType != "" && item.PostType != q.PostType {
		return false
	}
	if q.PostIn != nil && !q.PostIn.Contains(item.Id) {
		return false
	}
	if q.Visibility == types.VisibleOnly && !q.IgnoreVisibility && !item.visibility.Visible() {
		return false
	}
	for _, c := range q.TaxQuery {
		if !hasAny(item.Terms[c.Taxonomy], c.Terms) {
			return false
		}
	}
	for _, c := range q.MetaQuery {
		if !hasAny(item.Meta[c.Key], c.Values) {
			return false
		}
	}
	for _, c := range q.SourceQuery {
		if !hasAny(m.sourceValues(item, c.Type), c.Slugs) {
			return false
		}
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(item.Title), needle) && !strings.Contains(strings.ToLower(item.Content), needle) {
			return false
		}
	}
	return true
}

func (m *MemoryStore) sourceValues(item *memItem, sourceType string) []string {
	if sourceType == types.YearSource {
		if item.PublishedAt.IsZero() {
			return nil
		}
		return []string{strconv.Itoa(item.PublishedAt.Year())}
	}
	ret := make([]string, 0, len(item.Sources))
	for _, id := range item.Sources {
		if s, ok := m.sources[id]; ok && s.Type == sourceType {
			ret = append(ret, s.Slug)
		}
	}
	return ret
}

func hasAny(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Execute(ctx context.Context, q *types.Query) (*types.ItemList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := types.NewItemList()
	for _, item := range m.items {
		if m.matches(item, q) {
			ret.AddId(item.Id)
		}
	}
	return ret, nil
}

func (m *MemoryStore) Items(_ context.Context, ids []types.ItemId, offset, limit int) ([]types.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]types.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			ret = append(ret, types.Item{
				Id:          item.Id,
				PostType:    item.PostType,
				Title:       item.Title,
				Slug:        item.Slug,
				Excerpt:     excerpt(item.Content),
				PublishedAt: item.PublishedAt,
			})
		}
	}
	slices.SortStableFunc(ret, func(a, b types.Item) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Id, a.Id)
	})
	start := min(max(offset, 0), len(ret))
	end := len(ret)
	if limit > 0 {
		end = min(start+limit, end)
	}
	return ret[start:end], nil
}

func excerpt(content string) string {
	const limit = 160
	r := []rune(content)
	if len(r) <= limit {
		return content
	}
	return string(r[:limit]) + "…"
}

func (m *MemoryStore) Postings(ctx context.Context, kind types.FacetKind, name string) ([]types.Posting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	byValue := map[string]*types.Posting{}
	add := func(id, value, title string, item types.ItemId) {
		p, ok := byValue[value]
		if !ok {
			p = &types.Posting{Id: id, Value: value, Title: title, Items: types.NewItemList()}
			byValue[value] = p
		}
		p.Items.AddId(item)
	}
	for _, item := range m.items {
		switch kind {
		case types.FacetTaxonomy:
			terms := m.taxonomies[name]
			for _, slug := range item.Terms[name] {
				t, ok := terms[slug]
				if !ok {
					continue
				}
				add(strconv.Itoa(int(m.termIds[name+"/"+slug])), slug, t.Name, item.Id)
			}
		case types.FacetMeta:
			for _, v := range item.Meta[name] {
				add(v, v, v, item.Id)
			}
		case types.FacetSource:
			if name == types.YearSource {
				for _, y := range m.sourceValues(item, name) {
					add(y, y, y, item.Id)
				}
				continue
			}
			for _, sid := range item.Sources {
				if s, ok := m.sources[sid]; ok && s.Type == name {
					add(strconv.Itoa(int(s.Id)), s.Slug, s.Name, item.Id)
				}
			}
		default:
			return nil, fmt.Errorf("postings: unsupported kind %q", kind)
		}
	}
	ret := make([]types.Posting, 0, len(byValue))
	for _, key := range slices.Sorted(maps.Keys(byValue)) {
		ret = append(ret, *byValue[key])
	}
	return ret, nil
}

func (m *MemoryStore) HasTaxonomy(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.taxonomies[name]
	return ok, nil
}

func (m *MemoryStore) HasSourceType(_ context.Context, name string) (bool, error) {
	if name == types.YearSource {
		return true, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sourceTypes[name]
	return ok, nil
}

// Visibility storage

func (m *MemoryStore) container(ref types.EntityRef) (*memSource, error) {
	s, ok := m.sources[ref.Id]
	if !ok || s.Type != string(ref.Kind) {
		return nil, fmt.Errorf("%s %d: %w", ref.Kind, ref.Id, ErrNotFound)
	}
	return s, nil
}

func (m *MemoryStore) item(id types.ItemId) (*memItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return item, nil
}

func (m *MemoryStore) Parents(_ context.Context, id types.ItemId) ([]types.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, err := m.item(id)
	if err != nil {
		return nil, err
	}
	ret := make([]types.Container, 0, len(item.Sources))
	for _, sid := range item.Sources {
		s, ok := m.sources[sid]
		if !ok {
			continue
		}
		kind := types.EntityKind(s.Type)
		if !kind.IsContainer() {
			continue
		}
		ret = append(ret, types.Container{
			Ref:                 types.EntityRef{Kind: kind, Id: s.Id},
			ExcludeFromMainList: s.ExcludeFromMainList,
		})
	}
	return ret, nil
}

func (m *MemoryStore) Members(_ context.Context, ref types.EntityRef) ([]types.ItemId, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, err := m.container(ref); err != nil {
		return nil, err
	}
	ret := make([]types.ItemId, 0)
	for id, item := range m.items {
		if slices.Contains(item.Sources, ref.Id) {
			ret = append(ret, id)
		}
	}
	slices.Sort(ret)
	return ret, nil
}

func (m *MemoryStore) Visibility(_ context.Context, ref types.EntityRef) (types.VisibilityState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ref.Kind == types.EntityItem {
		item, err := m.item(ref.Id)
		if err != nil {
			return types.Unclassified, err
		}
		return item.visibility, nil
	}
	s, err := m.container(ref)
	if err != nil {
		return types.Unclassified, err
	}
	return s.visibility, nil
}

func (m *MemoryStore) SetVisibility(_ context.Context, ref types.EntityRef, state types.VisibilityState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref.Kind == types.EntityItem {
		item, err := m.item(ref.Id)
		if err != nil {
			return err
		}
		item.visibility = state
		return nil
	}
	s, err := m.container(ref)
	if err != nil {
		return err
	}
	s.visibility = state
	return nil
}

func (m *MemoryStore) Preference(_ context.Context, id types.ItemId) (*bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, err := m.item(id)
	if err != nil {
		return nil, err
	}
	if item.ShowInMainList == nil {
		return nil, nil
	}
	v := *item.ShowInMainList
	return &v, nil
}

func (m *MemoryStore) SetPreference(_ context.Context, id types.ItemId, show bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.item(id)
	if err != nil {
		return err
	}
	item.ShowInMainList = &show
	return nil
}

func (m *MemoryStore) Excluded(_ context.Context, ref types.EntityRef) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.container(ref)
	if err != nil {
		return false, err
	}
	return s.ExcludeFromMainList, nil
}

func (m *MemoryStore) SetExcluded(_ context.Context, ref types.EntityRef, exclude bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.container(ref)
	if err != nil {
		return err
	}
	s.ExcludeFromMainList = exclude
	return nil
}
