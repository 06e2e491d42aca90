package server

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/schema"
	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/matst80/slask-archive/pkg/filter"
)

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

// Vars is a set of request variables. In json each value may be a string,
// a number, a bool or a list of those.
type Vars url.Values

func (v *Vars) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := jsoncompat.Unmarshal(data, &raw); err != nil {
		return err
	}
	ret := make(Vars, len(raw))
	for k, value := range raw {
		switch t := value.(type) {
		case []any:
			for _, item := range t {
				ret[k] = append(ret[k], scalar(item))
			}
		case nil:
		default:
			ret[k] = []string{scalar(t)}
		}
	}
	*v = ret
	return nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// First collapses the vars to one value per key, as context args expect.
func (v Vars) First() map[string]string {
	ret := make(map[string]string, len(v))
	for k, values := range v {
		if len(values) > 0 {
			ret[k] = values[0]
		}
	}
	return ret
}

// OptionsRequest asks for the options of one facet.
type OptionsRequest struct {
	FacetId     string   `json:"facetId" schema:"facetId"`
	Selected    []string `json:"selected" schema:"selected"`
	Context     string   `json:"context" schema:"context"`
	ContentType string   `json:"contentType" schema:"contentType"`
	Args        Vars     `json:"args" schema:"-"`
	QueryVars   Vars     `json:"queryVars" schema:"-"`
}

const argPrefix = "args."

var optionsRequestKeys = []string{"facetId", "selected", "context", "contentType"}

// OptionsArgs is the manager side view of the request.
func (o *OptionsRequest) OptionsArgs() filter.OptionsArgs {
	return filter.OptionsArgs{
		QueryVars:   url.Values(o.QueryVars),
		ContextArgs: o.Args.First(),
	}
}

// GetOptionsRequest decodes a GET query string or a json POST body. On GET,
// keys prefixed with "args." feed the context args and every other key not
// naming a request field is treated as a query var.
func GetOptionsRequest(r *http.Request) (*OptionsRequest, error) {
	req := &OptionsRequest{}
	if r.Method != http.MethodGet {
		if err := jsoncompat.NewDecoder(r.Body).Decode(req); err != nil {
			return nil, fmt.Errorf("decode options request: %w", err)
		}
		return req, nil
	}
	query := r.URL.Query()
	if err := decoder.Decode(req, query); err != nil {
		return nil, fmt.Errorf("decode options query: %w", err)
	}
	req.Args = Vars{}
	req.QueryVars = Vars{}
	for k, v := range query {
		switch {
		case strings.HasPrefix(k, argPrefix):
			req.Args[strings.TrimPrefix(k, argPrefix)] = v
		case !slices.Contains(optionsRequestKeys, k):
			req.QueryVars[k] = v
		}
	}
	return req, nil
}

// ListingRequest carries the listing controls that are not facet values.
type ListingRequest struct {
	All      bool `schema:"all"`
	Page     int  `schema:"paged"`
	PageSize int  `schema:"posts_per_page,default:10"`
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func GetListingRequest(query url.Values) (*ListingRequest, error) {
	req := &ListingRequest{}
	if err := decoder.Decode(req, query); err != nil {
		return nil, fmt.Errorf("decode listing query: %w", err)
	}
	req.Page = clamp(req.Page, 1, 1000)
	req.PageSize = clamp(req.PageSize, 1, 100)
	return req, nil
}
