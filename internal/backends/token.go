package backends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AnumHasan/django/internal/auth"
)

// TokenBackend authenticates bearer tokens minted by IssueToken. It
// implements no permission capabilities on purpose: a token proves identity,
// authorization stays with the model backend in the same chain.
type TokenBackend struct {
	store  Store
	secret []byte
	issuer string
}

// NewTokenBackend constructs a token backend. Tokens are HMAC signed with
// secret and carry issuer.
func NewTokenBackend(store Store, secret, issuer string) *TokenBackend {
	return &TokenBackend{store: store, secret: []byte(secret), issuer: issuer}
}

// IssueToken mints a bearer token for the user, valid for ttl.
func (b *TokenBackend) IssueToken(user *auth.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    b.issuer,
		Subject:   user.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
}

// Authenticate verifies the bearer token and resolves its subject. Invalid,
// expired or foreign tokens report no match so the rest of the chain can
// still run; only store failures surface as errors.
func (b *TokenBackend) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.User, error) {
	if creds.Token == "" {
		return nil, nil
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(creds.Token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("backends: unexpected signing method %s", t.Method.Alg())
		}
		return b.secret, nil
	}, jwt.WithIssuer(b.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, nil
	}
	user, err := b.store.UserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, nil
	}
	return user, nil
}

var _ auth.Backend = (*TokenBackend)(nil)
