package server

import (
	"net/http"
	"strconv"

	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/matst80/slask-archive/pkg/failure"
	"github.com/matst80/slask-archive/pkg/seo"
	"github.com/matst80/slask-archive/pkg/types"
	"github.com/matst80/slask-archive/pkg/visibility"
)

type ArchiveResponse struct {
	ContentType string              `json:"contentType"`
	Items       []types.Item        `json:"items"`
	Total       int                 `json:"total"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"pageSize"`
	Facets      map[string][]string `json:"facets"`
	Seo         seo.Meta            `json:"seo"`
}

// Archive lists one page of a content type narrowed by the active facets and
// the free text search. Admins may pass all=1 to include hidden items in this
// one request.
func (ws *WebServer) Archive(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	m, err := ws.manager(r.PathValue("contentType"))
	if err != nil {
		return ws.writeError(w, enc, err)
	}
	vars := r.URL.Query()
	listing, err := GetListingRequest(vars)
	if err != nil {
		return ws.writeError(w, enc, failure.New(failure.MissingParameter, err).WithMessage("The listing request could not be read."))
	}

	q := types.QueryFromVars(m.PostType(), vars)
	q.Page = listing.Page - 1
	q.PerPage = listing.PageSize
	active := m.ApplyFacetFilters(q, vars)
	if listing.All && ws.Auth.IsAdmin(r) {
		q.IgnoreVisibility = true
	}
	ws.Engine.Constrain(q)

	ids, err := m.Store().Execute(r.Context(), q)
	if err != nil {
		return ws.writeError(w, enc, failure.New(failure.QueryExecutionError, err).With("contentType", m.PostType()))
	}
	items, err := m.Store().Items(r.Context(), ids.Ids(), q.Offset(), q.PerPage)
	if err != nil {
		return ws.writeError(w, enc, failure.New(failure.QueryExecutionError, err).With("contentType", m.PostType()))
	}

	cacheHeaders(w, "60")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(ArchiveResponse{
		ContentType: m.PostType(),
		Items:       items,
		Total:       ids.Len(),
		Page:        listing.Page,
		PageSize:    listing.PageSize,
		Facets:      active,
		Seo:         ws.Seo.Meta(r.Context(), m, r.URL, active),
	})
}

type ItemResponse struct {
	Item   types.Item        `json:"item"`
	Status visibility.Status `json:"status"`
}

// Item fetches a single item regardless of its visibility.
func (ws *WebServer) Item(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	m, err := ws.manager(r.PathValue("contentType"))
	if err != nil {
		return ws.writeError(w, enc, err)
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		return ws.writeError(w, enc, failure.New(failure.MissingParameter, err).With("param", "id"))
	}

	ids, err := m.Store().Execute(r.Context(), types.SingleItemQuery(m.PostType(), types.ItemId(id)))
	if err != nil {
		return ws.writeError(w, enc, failure.New(failure.QueryExecutionError, err).With("item", id))
	}
	items, err := m.Store().Items(r.Context(), ids.Ids(), 0, 1)
	if err != nil {
		return ws.writeError(w, enc, failure.New(failure.QueryExecutionError, err).With("item", id))
	}
	if len(items) == 0 {
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, "item not found", http.StatusNotFound)
		return nil
	}
	status, err := ws.Engine.Status(r.Context(), types.ItemId(id))
	if err != nil {
		return ws.writeError(w, enc, err)
	}

	cacheHeaders(w, "60")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(ItemResponse{Item: items[0], Status: status})
}
