package server

import (
	"errors"
	"net/http"

	"github.com/matst80/slask-archive/pkg/common"
	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/matst80/slask-archive/pkg/failure"
	"github.com/matst80/slask-archive/pkg/filter"
	"github.com/matst80/slask-archive/pkg/seo"
	"github.com/matst80/slask-archive/pkg/storage"
	"github.com/matst80/slask-archive/pkg/visibility"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type WebServer struct {
	Registry           *filter.Registry
	Engine             *visibility.Engine
	Seo                *seo.Helper
	Auth               *AdminAuth
	DefaultContentType string
	Debug              bool
	Logger             *zap.Logger
}

type handlerFunc = func(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error

func (ws *WebServer) Handle(mux *http.ServeMux) {
	json := func(fn handlerFunc) http.HandlerFunc {
		return common.JsonHandler(ws.Logger, fn)
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/facet-options", json(ws.FacetOptions))
	mux.HandleFunc("GET /api/facets/{contentType}", json(ws.Facets))
	mux.HandleFunc("GET /api/archive/{contentType}", json(ws.Archive))
	mux.HandleFunc("GET /api/archive/{contentType}/{id}", json(ws.Item))

	mux.HandleFunc("POST /admin/item/{id}", ws.Auth.Middleware(json(ws.SaveItem)))
	mux.HandleFunc("POST /admin/{kind}/{id}", ws.Auth.Middleware(json(ws.SaveContainer)))
	mux.HandleFunc("POST /admin/{kind}/{id}/propagate", ws.Auth.Middleware(json(ws.PropagateContainer)))
}

func (ws *WebServer) manager(contentType string) (*filter.Manager, error) {
	if contentType == "" {
		contentType = ws.DefaultContentType
	}
	m, ok := ws.Registry.Get(contentType)
	if !ok {
		return nil, failure.New(failure.FacetIncompatibleWithContentType, nil).
			WithMessage("The requested content type is not filterable.").
			With("contentType", contentType)
	}
	return m, nil
}

func cacheHeaders(w http.ResponseWriter, cacheTime string) {
	w.Header().Set("Cache-Control", "private, stale-while-revalidate="+cacheTime)
	w.Header().Set("Age", "0")
}

// writeError answers with the wire form of err. The error is logged here so
// the returned value only reports encoding trouble.
func (ws *WebServer) writeError(w http.ResponseWriter, enc jsoncompat.Encoder, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		ws.Logger.Warn("entity not found", zap.Error(err))
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, "not found", http.StatusNotFound)
		return nil
	}
	fe := failure.From(err)
	failure.Log(ws.Logger, "request failed", fe)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(fe.Status)
	return enc.Encode(fe.Response(ws.Debug))
}
