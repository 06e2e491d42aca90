package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/matst80/slask-archive/pkg/failure"
	"github.com/matst80/slask-archive/pkg/types"
)

const (
	tokenCookieName = "sa-admin"
	AdminRole       = "admin"
)

type ContextValue string

var ContextRole = ContextValue("role")

// AdminAuth verifies HS256 tokens signed with a shared secret. With an empty
// secret every admin request is refused.
type AdminAuth struct {
	serverKey []byte
}

func NewAdminAuth(secret string) *AdminAuth {
	return &AdminAuth{serverKey: []byte(secret)}
}

// CreateToken signs a token for username valid for ttl.
func (a *AdminAuth) CreateToken(username, role string, ttl time.Duration) (string, error) {
	if len(a.serverKey) == 0 {
		return "", errors.New("admin secret is not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{
			"username": username,
			"role":     role,
			"exp":      time.Now().Add(ttl).Unix(),
		})
	return token.SignedString(a.serverKey)
}

func (a *AdminAuth) ParseJwt(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.serverKey, nil
	})
}

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Role returns the role claim of a valid request token.
func (a *AdminAuth) Role(r *http.Request) (string, bool) {
	if a == nil || len(a.serverKey) == 0 {
		return "", false
	}
	tokenString := tokenFromRequest(r)
	if tokenString == "" {
		return "", false
	}
	token, err := a.ParseJwt(tokenString)
	if err != nil || !token.Valid {
		return "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	role, ok := claims["role"].(string)
	return role, ok
}

func (a *AdminAuth) IsAdmin(r *http.Request) bool {
	role, ok := a.Role(r)
	return ok && role == AdminRole
}

func (a *AdminAuth) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, ok := a.Role(r)
		if !ok || role != AdminRole {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ContextRole, role)))
	}
}

type ItemSaveRequest struct {
	ShowInMainList *bool `json:"showInMainList"`
}

type ContainerSaveRequest struct {
	ExcludeFromMainList bool `json:"excludeFromMainList"`
}

type SaveResponse struct {
	Ref    types.EntityRef `json:"ref"`
	Status any             `json:"status,omitempty"`
}

func pathId(r *http.Request) (uint32, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		return 0, failure.New(failure.MissingParameter, err).With("param", "id")
	}
	return uint32(id), nil
}

func containerRef(r *http.Request) (types.EntityRef, error) {
	kind := types.EntityKind(r.PathValue("kind"))
	if !kind.IsContainer() {
		return types.EntityRef{}, failure.New(failure.MissingParameter, fmt.Errorf("unknown container kind %q", kind)).With("param", "kind")
	}
	id, err := pathId(r)
	if err != nil {
		return types.EntityRef{}, err
	}
	return types.EntityRef{Kind: kind, Id: id}, nil
}

// SaveItem runs the item save hook with the author's show-in-main-list
// preference. A missing preference keeps the stored one.
func (ws *WebServer) SaveItem(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	id, err := pathId(r)
	if err != nil {
		return ws.writeError(w, enc, err)
	}
	req := ItemSaveRequest{}
	if err = jsoncompat.NewDecoder(r.Body).Decode(&req); err != nil {
		return ws.writeError(w, enc, failure.New(failure.MissingParameter, err).WithMessage("The save request could not be read."))
	}
	if err = ws.Engine.OnItemSave(r.Context(), id, req.ShowInMainList); err != nil {
		return ws.writeError(w, enc, err)
	}
	status, err := ws.Engine.Status(r.Context(), id)
	if err != nil {
		return ws.writeError(w, enc, err)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(SaveResponse{Ref: types.ItemRef(id), Status: status})
}

// SaveContainer stores a series or service type exclusion flag and propagates
// it to every member item.
func (ws *WebServer) SaveContainer(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	ref, err := containerRef(r)
	if err != nil {
		return ws.writeError(w, enc, err)
	}
	req := ContainerSaveRequest{}
	if err = jsoncompat.NewDecoder(r.Body).Decode(&req); err != nil {
		return ws.writeError(w, enc, failure.New(failure.MissingParameter, err).WithMessage("The save request could not be read."))
	}
	if err = ws.Engine.OnContainerSave(r.Context(), ref, req.ExcludeFromMainList); err != nil {
		return ws.writeError(w, enc, err)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(SaveResponse{Ref: ref})
}

// PropagateContainer re-runs propagation from the stored container flag.
func (ws *WebServer) PropagateContainer(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	ref, err := containerRef(r)
	if err != nil {
		return ws.writeError(w, enc, err)
	}
	if err = ws.Engine.Propagate(r.Context(), ref); err != nil {
		return ws.writeError(w, enc, err)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(SaveResponse{Ref: ref})
}
