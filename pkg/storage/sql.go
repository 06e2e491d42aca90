package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matst80/slask-archive/pkg/types"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const timeLayout = time.RFC3339

// SQLStore is the relational content store: items plus taxonomy, meta and
// source join tables.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens (or creates) the database at path. ":memory:" keeps a
// single connection so every query sees the same database.
func OpenSQL(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err = db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func buildWhere(q *types.Query) (string, []any) {
	where := []string{"1=1"}
	args := []any{}
	if q.PostType != "" {
		where = append(where, "i.post_type = ?")
		args = append(args, q.PostType)
	}
	for _, c := range q.TaxQuery {
		if len(c.Terms) == 0 {
			continue
		}
		where = append(where, "i.id IN (SELECT it.item_id FROM item_terms it JOIN terms t ON t.id = it.term_id WHERE t.taxonomy = ? AND t.slug IN ("+placeholders(len(c.Terms))+"))")
		args = appendStrings(append(args, c.Taxonomy), c.Terms)
	}
	for _, c := range q.MetaQuery {
		if len(c.Values) == 0 {
			continue
		}
		where = append(where, "i.id IN (SELECT item_id FROM item_meta WHERE meta_key = ? AND meta_value IN ("+placeholders(len(c.Values))+"))")
		args = appendStrings(append(args, c.Key), c.Values)
	}
	for _, c := range q.SourceQuery {
		if len(c.Slugs) == 0 {
			continue
		}
		if c.Type == types.YearSource {
			where = append(where, "strftime('%Y', i.published_at) IN ("+placeholders(len(c.Slugs))+")")
			args = appendStrings(args, c.Slugs)
			continue
		}
		where = append(where, "i.id IN (SELECT s.item_id FROM item_sources s JOIN sources src ON src.id = s.source_id WHERE src.source_type = ? AND src.slug IN ("+placeholders(len(c.Slugs))+"))")
		args = appendStrings(append(args, c.Type), c.Slugs)
	}
	if q.PostIn != nil {
		ids := q.PostIn.Ids()
		if len(ids) == 0 {
			where = append(where, "0")
		} else {
			where = append(where, "i.id IN ("+placeholders(len(ids))+")")
			for _, id := range ids {
				args = append(args, id)
			}
		}
	}
	if q.Search != "" {
		pattern := escapeLike(q.Search)
		where = append(where, `(i.title LIKE ? ESCAPE '\' OR i.content LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if q.Visibility == types.VisibleOnly && !q.IgnoreVisibility {
		where = append(where, "(i.visibility IS NULL OR i.visibility = 'public')")
	}
	return strings.Join(where, " AND "), args
}

func (s *SQLStore) Execute(ctx context.Context, q *types.Query) (*types.ItemList, error) {
	where, args := buildWhere(q)
	rows, err := s.db.QueryContext(ctx, "SELECT i.id FROM items i WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()
	ret := types.NewItemList()
	for rows.Next() {
		var id types.ItemId
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ret.AddId(id)
	}
	return ret, rows.Err()
}

func (s *SQLStore) Items(ctx context.Context, ids []types.ItemId, offset, limit int) ([]types.Item, error) {
	if len(ids) == 0 || offset >= len(ids) {
		return []types.Item{}, nil
	}
	if limit <= 0 {
		limit = -1
	}
	args := make([]any, len(ids), len(ids)+2)
	for i, id := range ids {
		args[i] = id
	}
	args = append(args, limit, max(offset, 0))
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, post_type, title, slug, content, COALESCE(published_at, '') FROM items WHERE id IN ("+placeholders(len(ids))+") ORDER BY published_at DESC, id DESC LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	ret := make([]types.Item, 0, min(len(ids), max(limit, 0)))
	for rows.Next() {
		var item types.Item
		var content, published string
		if err := rows.Scan(&item.Id, &item.PostType, &item.Title, &item.Slug, &content, &published); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Excerpt = excerpt(content)
		if published != "" {
			item.PublishedAt, _ = time.Parse(timeLayout, published)
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *SQLStore) Postings(ctx context.Context, kind types.FacetKind, name string) ([]types.Posting, error) {
	var query string
	args := []any{name}
	switch kind {
	case types.FacetTaxonomy:
		query = "SELECT t.id, t.slug, t.name, it.item_id FROM terms t JOIN item_terms it ON it.term_id = t.id WHERE t.taxonomy = ? ORDER BY t.slug"
	case types.FacetMeta:
		query = "SELECT meta_value, meta_value, meta_value, item_id FROM item_meta WHERE meta_key = ? ORDER BY meta_value"
	case types.FacetSource:
		if name == types.YearSource {
			query = "SELECT strftime('%Y', published_at), strftime('%Y', published_at), strftime('%Y', published_at), id FROM items WHERE published_at IS NOT NULL ORDER BY published_at"
			args = nil
		} else {
			query = "SELECT src.id, src.slug, src.name, s.item_id FROM sources src JOIN item_sources s ON s.source_id = src.id WHERE src.source_type = ? ORDER BY src.slug"
		}
	default:
		return nil, fmt.Errorf("postings: unsupported kind %q", kind)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load postings: %w", err)
	}
	defer rows.Close()
	ret := make([]types.Posting, 0)
	idx := map[string]int{}
	for rows.Next() {
		var id, value, title string
		var itemId types.ItemId
		if err := rows.Scan(&id, &value, &title, &itemId); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		i, ok := idx[value]
		if !ok {
			i = len(ret)
			idx[value] = i
			ret = append(ret, types.Posting{Id: id, Value: value, Title: title, Items: types.NewItemList()})
		}
		ret[i].Items.AddId(itemId)
	}
	return ret, rows.Err()
}

func (s *SQLStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) HasTaxonomy(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM taxonomies WHERE name = ?", name)
}

func (s *SQLStore) HasSourceType(ctx context.Context, name string) (bool, error) {
	if name == types.YearSource {
		return true, nil
	}
	return s.exists(ctx, "SELECT 1 FROM source_types WHERE name = ?", name)
}

// Import upserts a dataset in one transaction. Stored visibility is kept.
func (s *SQLStore) Import(ctx context.Context, ds *Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, t := range ds.Taxonomies {
		if _, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO taxonomies (name) VALUES (?)", t); err != nil {
			return fmt.Errorf("insert taxonomy: %w", err)
		}
	}
	for _, st := range ds.SourceTypes {
		if _, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO source_types (name) VALUES (?)", st); err != nil {
			return fmt.Errorf("insert source type: %w", err)
		}
	}
	for _, t := range ds.Terms {
		if err = upsertTerm(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, src := range ds.Sources {
		if _, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO source_types (name) VALUES (?)", src.Type); err != nil {
			return fmt.Errorf("insert source type: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO sources (id, source_type, slug, name, exclude_from_main_list) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET source_type = excluded.source_type, slug = excluded.slug, name = excluded.name, exclude_from_main_list = excluded.exclude_from_main_list`,
			src.Id, src.Type, src.Slug, src.Name, src.ExcludeFromMainList); err != nil {
			return fmt.Errorf("insert source %d: %w", src.Id, err)
		}
	}
	for _, item := range ds.Items {
		if err = importItem(ctx, tx, item); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertTerm(ctx context.Context, tx *sql.Tx, t TermRecord) error {
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO taxonomies (name) VALUES (?)", t.Taxonomy); err != nil {
		return fmt.Errorf("insert taxonomy: %w", err)
	}
	name := t.Name
	if name == "" {
		name = t.Slug
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO terms (taxonomy, slug, name) VALUES (?, ?, ?)
		 ON CONFLICT(taxonomy, slug) DO UPDATE SET name = excluded.name`,
		t.Taxonomy, t.Slug, name); err != nil {
		return fmt.Errorf("insert term %s/%s: %w", t.Taxonomy, t.Slug, err)
	}
	return nil
}

func importItem(ctx context.Context, tx *sql.Tx, item ItemRecord) error {
	var published any
	if !item.PublishedAt.IsZero() {
		published = item.PublishedAt.UTC().Format(timeLayout)
	}
	var pref any
	if item.ShowInMainList != nil {
		pref = *item.ShowInMainList
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO items (id, post_type, title, slug, content, published_at, show_pref) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET post_type = excluded.post_type, title = excluded.title, slug = excluded.slug,
		 content = excluded.content, published_at = excluded.published_at, show_pref = COALESCE(excluded.show_pref, items.show_pref)`,
		item.Id, item.PostType, item.Title, item.Slug, item.Content, published, pref); err != nil {
		return fmt.Errorf("insert item %d: %w", item.Id, err)
	}
	for _, q := range []string{"DELETE FROM item_terms WHERE item_id = ?", "DELETE FROM item_meta WHERE item_id = ?", "DELETE FROM item_sources WHERE item_id = ?"} {
		if _, err := tx.ExecContext(ctx, q, item.Id); err != nil {
			return fmt.Errorf("reset item %d links: %w", item.Id, err)
		}
	}
	for tax, slugs := range item.Terms {
		for _, slug := range slugs {
			var termId int64
			err := tx.QueryRowContext(ctx, "SELECT id FROM terms WHERE taxonomy = ? AND slug = ?", tax, slug).Scan(&termId)
			if errors.Is(err, sql.ErrNoRows) {
				if err = upsertTerm(ctx, tx, TermRecord{Taxonomy: tax, Slug: slug}); err != nil {
					return err
				}
				err = tx.QueryRowContext(ctx, "SELECT id FROM terms WHERE taxonomy = ? AND slug = ?", tax, slug).Scan(&termId)
			}
			if err != nil {
				return fmt.Errorf("find term %s/%s: %w", tax, slug, err)
			}
			if _, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO item_terms (item_id, term_id) VALUES (?, ?)", item.Id, termId); err != nil {
				return fmt.Errorf("link term: %w", err)
			}
		}
	}
	for key, values := range item.Meta {
		for _, v := range values {
			if _, err := tx.ExecContext(ctx, "INSERT INTO item_meta (item_id, meta_key, meta_value) VALUES (?, ?, ?)", item.Id, key, v); err != nil {
				return fmt.Errorf("insert meta: %w", err)
			}
		}
	}
	for _, sid := range item.Sources {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO item_sources (item_id, source_id) VALUES (?, ?)", item.Id, sid); err != nil {
			return fmt.Errorf("link source: %w", err)
		}
	}
	return nil
}

// Export dumps the store as a dataset. Visibility is runtime state and is not exported.
func (s *SQLStore) Export(ctx context.Context) (*Dataset, error) {
	ds := &Dataset{}
	if err := s.collect(ctx, "SELECT name FROM taxonomies ORDER BY name", func(rows *sql.Rows) error {
		var name string
		err := rows.Scan(&name)
		ds.Taxonomies = append(ds.Taxonomies, name)
		return err
	}); err != nil {
		return nil, err
	}
	if err := s.collect(ctx, "SELECT name FROM source_types ORDER BY name", func(rows *sql.Rows) error {
		var name string
		err := rows.Scan(&name)
		ds.SourceTypes = append(ds.SourceTypes, name)
		return err
	}); err != nil {
		return nil, err
	}
	if err := s.collect(ctx, "SELECT taxonomy, slug, name FROM terms ORDER BY taxonomy, slug", func(rows *sql.Rows) error {
		var t TermRecord
		err := rows.Scan(&t.Taxonomy, &t.Slug, &t.Name)
		ds.Terms = append(ds.Terms, t)
		return err
	}); err != nil {
		return nil, err
	}
	if err := s.collect(ctx, "SELECT id, source_type, slug, name, exclude_from_main_list FROM sources ORDER BY id", func(rows *sql.Rows) error {
		var src SourceRecord
		err := rows.Scan(&src.Id, &src.Type, &src.Slug, &src.Name, &src.ExcludeFromMainList)
		ds.Sources = append(ds.Sources, src)
		return err
	}); err != nil {
		return nil, err
	}
	byId := map[types.ItemId]int{}
	if err := s.collect(ctx, "SELECT id, post_type, title, slug, content, COALESCE(published_at, ''), show_pref FROM items ORDER BY id", func(rows *sql.Rows) error {
		var item ItemRecord
		var published string
		var pref sql.NullBool
		if err := rows.Scan(&item.Id, &item.PostType, &item.Title, &item.Slug, &item.Content, &published, &pref); err != nil {
			return err
		}
		if published != "" {
			item.PublishedAt, _ = time.Parse(timeLayout, published)
		}
		if pref.Valid {
			v := pref.Bool
			item.ShowInMainList = &v
		}
		item.Terms = map[string][]string{}
		item.Meta = map[string][]string{}
		byId[item.Id] = len(ds.Items)
		ds.Items = append(ds.Items, item)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.collect(ctx, "SELECT it.item_id, t.taxonomy, t.slug FROM item_terms it JOIN terms t ON t.id = it.term_id ORDER BY it.item_id, t.slug", func(rows *sql.Rows) error {
		var id types.ItemId
		var tax, slug string
		if err := rows.Scan(&id, &tax, &slug); err != nil {
			return err
		}
		if i, ok := byId[id]; ok {
			ds.Items[i].Terms[tax] = append(ds.Items[i].Terms[tax], slug)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.collect(ctx, "SELECT item_id, meta_key, meta_value FROM item_meta ORDER BY item_id, meta_key", func(rows *sql.Rows) error {
		var id types.ItemId
		var key, value string
		if err := rows.Scan(&id, &key, &value); err != nil {
			return err
		}
		if i, ok := byId[id]; ok {
			ds.Items[i].Meta[key] = append(ds.Items[i].Meta[key], value)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.collect(ctx, "SELECT item_id, source_id FROM item_sources ORDER BY item_id, source_id", func(rows *sql.Rows) error {
		var id types.ItemId
		var sid uint32
		if err := rows.Scan(&id, &sid); err != nil {
			return err
		}
		if i, ok := byId[id]; ok {
			ds.Items[i].Sources = append(ds.Items[i].Sources, sid)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return ds, nil
}

func (s *SQLStore) collect(ctx context.Context, query string, fn func(rows *sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return fmt.Errorf("export scan: %w", err)
		}
	}
	return rows.Err()
}

// Visibility storage

func containerArgs(ref types.EntityRef) []any {
	return []any{ref.Id, string(ref.Kind)}
}

func (s *SQLStore) Parents(ctx context.Context, id types.ItemId) ([]types.Container, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT src.id, src.source_type, src.exclude_from_main_list FROM item_sources s
		 JOIN sources src ON src.id = s.source_id
		 WHERE s.item_id = ? AND src.source_type IN (?, ?) ORDER BY src.id`,
		id, string(types.EntitySeries), string(types.EntityServiceType))
	if err != nil {
		return nil, fmt.Errorf("load parents of %d: %w", id, err)
	}
	defer rows.Close()
	ret := make([]types.Container, 0)
	for rows.Next() {
		var c types.Container
		var kind string
		if err := rows.Scan(&c.Ref.Id, &kind, &c.ExcludeFromMainList); err != nil {
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		c.Ref.Kind = types.EntityKind(kind)
		ret = append(ret, c)
	}
	return ret, rows.Err()
}

func (s *SQLStore) Members(ctx context.Context, ref types.EntityRef) ([]types.ItemId, error) {
	ok, err := s.exists(ctx, "SELECT 1 FROM sources WHERE id = ? AND source_type = ?", containerArgs(ref)...)
	if err != nil {
		return nil, fmt.Errorf("find %s %d: %w", ref.Kind, ref.Id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s %d: %w", ref.Kind, ref.Id, ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT item_id FROM item_sources WHERE source_id = ? ORDER BY item_id", ref.Id)
	if err != nil {
		return nil, fmt.Errorf("load members of %s %d: %w", ref.Kind, ref.Id, err)
	}
	defer rows.Close()
	ret := make([]types.ItemId, 0)
	for rows.Next() {
		var id types.ItemId
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ret = append(ret, id)
	}
	return ret, rows.Err()
}

func (s *SQLStore) Visibility(ctx context.Context, ref types.EntityRef) (types.VisibilityState, error) {
	var state sql.NullString
	var err error
	if ref.Kind == types.EntityItem {
		err = s.db.QueryRowContext(ctx, "SELECT visibility FROM items WHERE id = ?", ref.Id).Scan(&state)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT visibility FROM sources WHERE id = ? AND source_type = ?", containerArgs(ref)...).Scan(&state)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return types.Unclassified, fmt.Errorf("%s %d: %w", ref.Kind, ref.Id, ErrNotFound)
	}
	if err != nil {
		return types.Unclassified, fmt.Errorf("load visibility: %w", err)
	}
	return types.ParseVisibilityState(state.String), nil
}

func (s *SQLStore) update(ctx context.Context, ref types.EntityRef, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", ref.Kind, ref.Id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %d: %w", ref.Kind, ref.Id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", ref.Kind, ref.Id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) SetVisibility(ctx context.Context, ref types.EntityRef, state types.VisibilityState) error {
	var value any
	if state != types.Unclassified {
		value = string(state)
	}
	if ref.Kind == types.EntityItem {
		return s.update(ctx, ref, "UPDATE items SET visibility = ? WHERE id = ?", value, ref.Id)
	}
	return s.update(ctx, ref, "UPDATE sources SET visibility = ? WHERE id = ? AND source_type = ?", value, ref.Id, string(ref.Kind))
}

func (s *SQLStore) Preference(ctx context.Context, id types.ItemId) (*bool, error) {
	var pref sql.NullBool
	err := s.db.QueryRowContext(ctx, "SELECT show_pref FROM items WHERE id = ?", id).Scan(&pref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load preference: %w", err)
	}
	if !pref.Valid {
		return nil, nil
	}
	v := pref.Bool
	return &v, nil
}

func (s *SQLStore) SetPreference(ctx context.Context, id types.ItemId, show bool) error {
	return s.update(ctx, types.ItemRef(id), "UPDATE items SET show_pref = ? WHERE id = ?", show, id)
}

func (s *SQLStore) Excluded(ctx context.Context, ref types.EntityRef) (bool, error) {
	var excluded bool
	err := s.db.QueryRowContext(ctx, "SELECT exclude_from_main_list FROM sources WHERE id = ? AND source_type = ?", containerArgs(ref)...).Scan(&excluded)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%s %d: %w", ref.Kind, ref.Id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("load exclusion: %w", err)
	}
	return excluded, nil
}

func (s *SQLStore) SetExcluded(ctx context.Context, ref types.EntityRef, exclude bool) error {
	return s.update(ctx, ref, "UPDATE sources SET exclude_from_main_list = ? WHERE id = ? AND source_type = ?", exclude, ref.Id, string(ref.Kind))
}

// SourceId resolves a source slug, used by the CLI.
func (s *SQLStore) SourceId(ctx context.Context, sourceType, slug string) (uint32, error) {
	var id uint32
	err := s.db.QueryRowContext(ctx, "SELECT id FROM sources WHERE source_type = ? AND slug = ?", sourceType, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s %q: %w", sourceType, slug, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("find source: %w", err)
	}
	return id, nil
}
