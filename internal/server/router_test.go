package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/admin"
	"github.com/ZUXXSU/chathubserver/internal/analytics"
	"github.com/ZUXXSU/chathubserver/internal/chat"
	"github.com/ZUXXSU/chathubserver/internal/config"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/middleware"
	"github.com/ZUXXSU/chathubserver/internal/realtime"
	"github.com/ZUXXSU/chathubserver/internal/user"
	"github.com/ZUXXSU/chathubserver/internal/web"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type discardAnalytics struct{ n int }

func (d *discardAnalytics) Insert(_ context.Context, _ *analytics.Record) error {
	d.n++
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *identity.Resolver, string, *discardAnalytics) {
	t.Helper()
	logger := zap.NewNop()
	responder := web.NewResponder(false, logger)
	resolver := identity.NewResolver("secret", time.Hour)
	dir := t.TempDir()
	store := &discardAnalytics{}

	// Only routes rejected by middleware are exercised, so the feature
	// handlers need no backing services.
	h := Handlers{
		User:      user.NewHandler(nil, responder),
		Chat:      chat.NewHandler(nil, nil, responder),
		Admin:     admin.NewHandler(nil, responder),
		Analytics: analytics.NewHandler(store, responder),
		Realtime:  realtime.NewHandler(nil, nil, nil, responder, logger),
	}
	return NewRouter(h, middleware.NewAuthMiddleware(resolver, responder), dir, logger), resolver, dir, store
}

func TestRouter_AuthBoundaries(t *testing.T) {
	router, resolver, _, _ := newTestRouter(t)
	member, err := resolver.Issue(identity.Principal{ID: "u1", Name: "Ana"})
	require.NoError(t, err)

	cases := map[string]struct {
		method, path, token string
		status              int
	}{
		"me without token":         {http.MethodGet, "/api/v1/user/me", "", http.StatusUnauthorized},
		"chats without token":      {http.MethodGet, "/api/v1/chat/my", "", http.StatusUnauthorized},
		"ws without token":         {http.MethodGet, "/ws", "", http.StatusUnauthorized},
		"admin stats as member":    {http.MethodGet, "/api/v1/admin/stats", member, http.StatusForbidden},
		"admin data as member":     {http.MethodGet, "/api/v1/admin/", member, http.StatusForbidden},
		"admin verify no token":    {http.MethodPost, "/api/v1/admin/verify", "", http.StatusUnauthorized},
		"user logout":              {http.MethodGet, "/api/v1/user/logout", member, http.StatusOK},
		"admin logout":             {http.MethodGet, "/api/v1/admin/logout", member, http.StatusOK},
		"unknown route":            {http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
		"wrong method on existing": {http.MethodGet, "/api/v1/user/login", "", http.StatusMethodNotAllowed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				r.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, r)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRouter_AdminPassesWithClaim(t *testing.T) {
	req := require.New(t)
	router, resolver, _, _ := newTestRouter(t)
	token, err := resolver.Issue(identity.Principal{ID: "u1", Admin: true})
	req.NoError(err)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/admin/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)

	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"admin":true}`, rec.Body.String())
}

func TestRouter_ServesUploads(t *testing.T) {
	req := require.New(t)
	router, _, dir, _ := newTestRouter(t)
	req.NoError(os.WriteFile(filepath.Join(dir, "raw_1.txt"), []byte("hello"), 0o644))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/raw_1.txt", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("hello", rec.Body.String())
}

func TestRouter_AnalyticsIsSoftAuthenticated(t *testing.T) {
	req := require.New(t)
	router, _, _, store := newTestRouter(t)

	body := `{"uniqueIdentifier":"d1","deviceModel":"Pixel","os":"android"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/data/send", strings.NewReader(body)))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal(1, store.n)
}

func TestNewHTTPServer(t *testing.T) {
	srv := NewHTTPServer(config.Config{Port: "4000"}, http.NotFoundHandler())
	require.Equal(t, ":4000", srv.Addr)
}
