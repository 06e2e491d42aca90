package server

import (
	"errors"
	"net/http"

	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/matst80/slask-archive/pkg/failure"
	"github.com/matst80/slask-archive/pkg/filter"
	"github.com/matst80/slask-archive/pkg/types"
	"go.uber.org/zap"
)

type OptionsResponse struct {
	Options     []types.Option `json:"options"`
	ParamName   string         `json:"paramName"`
	ContentType string         `json:"contentType"`
}

// surfaced reports whether a failure is returned to the caller. Lookup and
// strategy failures degrade to an empty option list instead.
func surfaced(err error) bool {
	return failure.Is(err, failure.MissingParameter) || failure.Is(err, failure.GeneralError)
}

// FacetOptions answers the facet-options request. Selected values do not
// change the result since a facet never narrows its own candidate pool.
func (ws *WebServer) FacetOptions(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	req, err := GetOptionsRequest(r)
	if err != nil {
		return ws.writeError(w, enc, failure.New(failure.MissingParameter, err).WithMessage("The filter request could not be read."))
	}
	if req.FacetId == "" {
		return ws.writeError(w, enc, failure.New(failure.MissingParameter, errors.New("facet id is empty")).With("param", "facetId"))
	}
	m, err := ws.manager(req.ContentType)
	if err != nil {
		return ws.writeError(w, enc, err)
	}

	res := OptionsResponse{
		Options:     []types.Option{},
		ContentType: m.PostType(),
	}
	if f := m.GetFacet(req.FacetId); f != nil {
		res.ParamName = f.Param
	}

	opts, err := m.FilterOptions(r.Context(), req.FacetId, req.Context, req.OptionsArgs())
	if err != nil {
		if surfaced(err) {
			return ws.writeError(w, enc, err)
		}
		failure.Log(ws.Logger, "facet options degraded to empty", err)
	} else {
		res.Options = opts
	}

	ws.Logger.Debug("facet options request",
		zap.String("facet", req.FacetId),
		zap.String("context", req.Context),
		zap.Strings("selected", req.Selected),
		zap.Int("options", len(res.Options)))
	cacheHeaders(w, "60")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(res)
}

type FacetsResponse struct {
	ContentType string           `json:"contentType"`
	Facets      []*types.Facet   `json:"facets"`
	Contexts    []*types.Context `json:"contexts"`
}

// Facets lists the public facets and the contexts of a content type.
func (ws *WebServer) Facets(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	m, err := ws.manager(r.PathValue("contentType"))
	if err != nil {
		return ws.writeError(w, enc, err)
	}
	public := true
	cacheHeaders(w, "600")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(FacetsResponse{
		ContentType: m.PostType(),
		Facets:      m.GetFacets(filter.FacetFilter{Public: &public}),
		Contexts:    m.Contexts(),
	})
}
