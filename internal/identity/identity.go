// Package identity turns bearer credentials into stable participant keys.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ID is the opaque, stable key of a chat participant.
type ID string

// Anonymous is what soft resolution yields when no valid credential is present.
const Anonymous ID = "unknown"

const issuer = "chathubserver"

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is a resolved caller.
type Principal struct {
	ID    ID
	Name  string
	Admin bool
}

type Claims struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type Resolver struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewResolver(secret string, ttl time.Duration) *Resolver {
	return &Resolver{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an HS256 token for p.
func (r *Resolver) Issue(p Principal) (string, error) {
	now := r.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name:  p.Name,
		Admin: p.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.ID),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	})
	ss, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return ss, nil
}

// Resolve verifies the token and returns its principal. Any failure is an
// authentication failure.
func (r *Resolver) Resolve(tokenString string) (Principal, error) {
	if tokenString == "" {
		return Principal{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(r.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	return Principal{ID: ID(claims.Subject), Name: claims.Name, Admin: claims.Admin}, nil
}

// ResolveSoft never fails: a missing or bad token yields Anonymous.
func (r *Resolver) ResolveSoft(tokenString string) Principal {
	p, err := r.Resolve(tokenString)
	if err != nil {
		return Principal{ID: Anonymous}
	}
	return p
}
