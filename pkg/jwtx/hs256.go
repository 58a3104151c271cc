package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSecret reports a missing signing secret. This is a deployment
	// error and must abort startup, never be handled per request.
	ErrNoSecret = errors.New("jwtx: signing secret is required")

	// ErrInvalid is the single error returned for any verification failure.
	// Callers must not be able to distinguish "expired" from "forged".
	ErrInvalid = errors.New("jwtx: invalid token")
)

// HS256 signs and verifies both token classes with a single server-held
// symmetric secret. Audience pinning is what keeps the classes apart.
type HS256 struct {
	secret []byte
	issuer string
}

// NewHS256 validates the secret up front so a misconfigured deployment
// fails at construction, not on the first request.
func NewHS256(secret []byte, issuer string) (*HS256, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if issuer == "" {
		return nil, errors.New("jwtx: issuer is required")
	}
	return &HS256{secret: secret, issuer: issuer}, nil
}

func (s *HS256) SignAccess(claims AccessClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *HS256) SignRefresh(claims RefreshClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyAccess validates signature, algorithm, issuer, audience and expiry.
// Any failure collapses to ErrInvalid.
func (s *HS256) VerifyAccess(token string) (AccessClaims, error) {
	var claims AccessClaims
	if err := s.verify(token, &claims, s.issuer+AccessAudienceSuffix); err != nil {
		return AccessClaims{}, err
	}
	return claims, nil
}

// VerifyRefresh is VerifyAccess scoped to the refresh audience.
func (s *HS256) VerifyRefresh(token string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.verify(token, &claims, s.issuer+RefreshAudienceSuffix); err != nil {
		return RefreshClaims{}, err
	}
	return claims, nil
}

func (s *HS256) verify(token string, claims jwt.Claims, audience string) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalid
	}
	return nil
}
