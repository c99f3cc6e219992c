package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/web"
)

type contextKey string

const principalKey contextKey = "principal"

// TokenResolver is what the middleware needs from the identity layer.
type TokenResolver interface {
	Resolve(token string) (identity.Principal, error)
	ResolveSoft(token string) identity.Principal
}

type AuthMiddleware struct {
	resolver  TokenResolver
	responder *web.Responder
}

func NewAuthMiddleware(r TokenResolver, responder *web.Responder) *AuthMiddleware {
	return &AuthMiddleware{resolver: r, responder: responder}
}

// Handle rejects requests without a valid token.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := am.resolver.Resolve(TokenFrom(r))
		if err != nil {
			am.responder.Error(w, r, &apperr.Error{
				Kind:    apperr.KindAuthentication,
				Message: "Please login to access this route",
				Err:     err,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Soft always lets the request through, attaching identity.Anonymous when the
// caller is not logged in.
func (am *AuthMiddleware) Soft(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := am.resolver.ResolveSoft(TokenFrom(r))
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// AdminOnly must run after Handle.
func (am *AuthMiddleware) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok || !p.Admin {
			am.responder.Error(w, r, apperr.Forbidden("Only Admin can access this route"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFrom reads the bearer header, falling back to the token query param
// (browsers cannot set headers on a websocket handshake).
func TokenFrom(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

func WithPrincipal(ctx context.Context, p identity.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalKey).(identity.Principal)
	return p, ok
}
