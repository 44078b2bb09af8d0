// Package auth issues and validates session tokens, hashes passwords and
// tracks revoked tokens.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: why does a stateless token need a revocation list?
// ────────────────────────────────────────────────────────────────────
// A JWT is self-contained: the server trusts the signed payload without a
// database lookup. That also means a token stays valid until it expires,
// even after the user logs out. Every token therefore carries a unique id
// (the "jti" claim). Logout stores that id in a Revoker until the token's
// own expiry, and the authentication middleware rejects any token whose
// id is listed. Entries never outlive the token, so the list stays small.
//
// Useful resource: https://datatracker.ietf.org/doc/html/rfc7519#section-4.1.7
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenDuration is used when no expiry is configured.
const DefaultTokenDuration = 24 * time.Hour

// Claims are the JWT claims embedded in each session token. The token id
// lives in RegisteredClaims.ID.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenID returns the jti claim.
func (c *Claims) TokenID() string { return c.ID }

// Issuer signs and verifies session tokens with one HS256 secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer returns an Issuer. A non-positive ttl falls back to
// DefaultTokenDuration.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenDuration
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// TTL is the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a signed token for the given user, valid from now.
func (i *Issuer) Issue(userID, role string, now time.Time) (string, *Claims, error) {
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse validates a token string and returns the embedded claims.
// It rejects tokens with:
//   - wrong or missing signature
//   - expired tokens (ExpiresAt in the past)
//   - unexpected signing algorithm (algorithm confusion attack prevention)
//   - no token id
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	return i.ParseAt(tokenStr, time.Now())
}

// ParseAt is Parse with expiry judged against now instead of the wall clock.
func (i *Issuer) ParseAt(tokenStr string, now time.Time) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		// Guard against "alg:none" or RS256 tokens being passed to an HS256 server.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ID == "" || claims.UserID == "" {
		return nil, errors.New("token missing required claims")
	}
	return claims, nil
}
