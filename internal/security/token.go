package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"teamchat/internal/domain"
)

// Claims are the identity claims read from a bearer token. The actor id is
// taken from user_id when present and from sub otherwise.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens issued by the identity provider
type TokenVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewTokenVerifier creates a verifier. An empty issuer disables the issuer check.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &TokenVerifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

// Verify returns the actor id carried by a valid token.
func (v *TokenVerifier) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return "", fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}

	actorID := claims.UserID
	if actorID == "" {
		actorID = claims.Subject
	}
	if actorID == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return actorID, nil
}

// Issue signs a token for actorID. Used by tooling and tests; production
// tokens come from the identity provider.
func (v *TokenVerifier) Issue(actorID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: actorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
