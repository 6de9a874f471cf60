// Package auth issues and checks the bearer tokens that identify callers and
// carries the resulting identity through request contexts.
package auth

import (
	"claimchat/backend/internal/config"
	"claimchat/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("auth: invalid or expired token")

type Claims struct {
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret  []byte
	ttl     time.Duration
	linkTTL time.Duration
	issuer  string
	now     func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{
		secret:  []byte(secret),
		ttl:     config.TokenTTL,
		linkTTL: config.LinkTokenTTL,
		issuer:  config.TokenIssuer,
		now:     time.Now,
	}
}

func (i *Issuer) LinkTTL() time.Duration { return i.linkTTL }

// Issue signs a token for identity.
func (i *Issuer) Issue(identity models.Identity) (string, error) {
	now := i.now()
	claims := Claims{
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return i.sign(claims)
}

// IssueLink signs a short-lived token that proves ownership of userID when a
// Telegram chat is linked to it.
func (i *Issuer) IssueLink(userID string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{config.LinkTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.linkTTL)),
		},
	}
	return i.sign(claims)
}

// Parse validates a session token and returns the identity it was issued for.
// Link tokens are not accepted here.
func (i *Issuer) Parse(tokenString string) (models.Identity, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return models.Identity{}, err
	}
	if len(claims.Audience) > 0 {
		return models.Identity{}, ErrInvalidToken
	}
	return models.Identity{ID: claims.Subject, DisplayName: claims.DisplayName}, nil
}

// ParseLink validates a link token and returns the user it was issued for.
func (i *Issuer) ParseLink(tokenString string) (string, error) {
	claims, err := i.parse(tokenString, jwt.WithAudience(config.LinkTokenAudience))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (i *Issuer) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(tokenString string, extra ...jwt.ParserOption) (*Claims, error) {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}, extra...)

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil }, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

type ctxKey struct{}

// WithIdentity returns a context carrying identity.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(ctxKey{}).(models.Identity)
	return identity, ok && identity.ID != ""
}

// ContextProvider serves the identity attached to the request context.
type ContextProvider struct{}

func (ContextProvider) CurrentIdentity(ctx context.Context) (models.Identity, bool) {
	return FromContext(ctx)
}
