package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/web"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*AuthMiddleware, *identity.Resolver) {
	t.Helper()
	resolver := identity.NewResolver("secret", time.Hour)
	return NewAuthMiddleware(resolver, web.NewResponder(false, zap.NewNop())), resolver
}

func capture(seen *identity.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestHandle(t *testing.T) {
	req := require.New(t)
	am, resolver := setup(t)
	token, err := resolver.Issue(identity.Principal{ID: "u1", Name: "Alice"})
	req.NoError(err)

	var seen identity.Principal
	h := am.Handle(capture(&seen))

	// Header
	r := httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	req.Equal(http.StatusNoContent, rec.Code)
	req.Equal(identity.ID("u1"), seen.ID)

	// Query fallback
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	req.Equal(http.StatusNoContent, rec.Code)

	// Missing
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)
}

func TestSoft(t *testing.T) {
	req := require.New(t)
	am, _ := setup(t)

	var seen identity.Principal
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/data/send", nil)
	r.Header.Set("Authorization", "Bearer junk")
	am.Soft(capture(&seen)).ServeHTTP(rec, r)

	req.Equal(http.StatusNoContent, rec.Code)
	req.Equal(identity.Anonymous, seen.ID)
}

func TestAdminOnly(t *testing.T) {
	req := require.New(t)
	am, resolver := setup(t)

	var seen identity.Principal
	h := am.Handle(am.AdminOnly(capture(&seen)))

	user, err := resolver.Issue(identity.Principal{ID: "u1"})
	req.NoError(err)
	admin, err := resolver.Issue(identity.Principal{ID: "u2", Admin: true})
	req.NoError(err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/?token="+user, nil))
	req.Equal(http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/?token="+admin, nil))
	req.Equal(http.StatusNoContent, rec.Code)
	req.Equal(identity.ID("u2"), seen.ID)
}
