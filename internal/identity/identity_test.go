package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssueAndResolve(t *testing.T) {
	req := require.New(t)

	// Given
	r := NewResolver("secret", time.Hour)
	token, err := r.Issue(Principal{ID: "u1", Name: "Alice"})
	req.NoError(err)

	// When
	p, err := r.Resolve(token)

	// Then
	req.NoError(err)
	req.Equal(ID("u1"), p.ID)
	req.Equal("Alice", p.Name)
	req.False(p.Admin)
}

func TestResolve_Failures(t *testing.T) {
	issuerSide := NewResolver("secret", time.Hour)
	good, err := issuerSide.Issue(Principal{ID: "u1", Name: "Alice"})
	require.NoError(t, err)

	expired := NewResolver("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(Principal{ID: "u1"})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]struct {
		resolver *Resolver
		token    string
		want     error
	}{
		"missing":      {issuerSide, "", ErrMissingToken},
		"garbage":      {issuerSide, "not-a-jwt", ErrInvalidToken},
		"wrong secret": {NewResolver("other", time.Hour), good, ErrInvalidToken},
		"expired":      {issuerSide, old, ErrInvalidToken},
		"alg none":     {issuerSide, unsigned, ErrInvalidToken},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.resolver.Resolve(tc.token)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestResolveSoft(t *testing.T) {
	req := require.New(t)

	r := NewResolver("secret", time.Hour)
	token, err := r.Issue(Principal{ID: "u9", Name: "Zed", Admin: true})
	req.NoError(err)

	req.Equal(Anonymous, r.ResolveSoft("").ID)
	req.Equal(Anonymous, r.ResolveSoft("broken").ID)

	p := r.ResolveSoft(token)
	req.Equal(ID("u9"), p.ID)
	req.True(p.Admin)
}
