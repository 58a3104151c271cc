package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Short-lived access tokens limit the blast radius of a
// leaked credential; the refresh token trades that off for user convenience.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Audience suffixes for the two token classes. The audiences differ so an
// access token can never be replayed where a refresh token is expected, and
// vice versa.
const (
	AccessAudienceSuffix  = "-users"
	RefreshAudienceSuffix = "-refresh"
)

// AccessClaims are the signed claims of a short-lived access token.
// TokenID is the revocation key shared with the paired refresh token.
type AccessClaims struct {
	jwt.RegisteredClaims

	UserID  int64  `json:"userId"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	TokenID string `json:"tokenId"`
}

// RefreshClaims are the signed claims of a long-lived refresh token. They
// deliberately exclude email and name: a refreshed access token must be
// re-derived from the user record, not trusted from stale refresh content.
type RefreshClaims struct {
	jwt.RegisteredClaims

	UserID  int64  `json:"userId"`
	TokenID string `json:"tokenId"`
}

// NewAccessClaims builds minimally-correct access claims.
func NewAccessClaims(
	userID int64,
	email, name, tokenID string,
	issuer string,
	ttl time.Duration,
	now time.Time,
) AccessClaims {
	return AccessClaims{
		RegisteredClaims: registered(issuer, issuer+AccessAudienceSuffix, ttl, now),
		UserID:           userID,
		Email:            email,
		Name:             name,
		TokenID:          tokenID,
	}
}

// NewRefreshClaims builds minimally-correct refresh claims.
func NewRefreshClaims(
	userID int64,
	tokenID string,
	issuer string,
	ttl time.Duration,
	now time.Time,
) RefreshClaims {
	return RefreshClaims{
		RegisteredClaims: registered(issuer, issuer+RefreshAudienceSuffix, ttl, now),
		UserID:           userID,
		TokenID:          tokenID,
	}
}

func registered(issuer, audience string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}
