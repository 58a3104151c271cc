package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caredesk/gatekit/internal/gate/domain"
	"github.com/caredesk/gatekit/internal/gate/store"
	"github.com/caredesk/gatekit/pkg/cryptox"
	"github.com/caredesk/gatekit/pkg/jwtx"
	"github.com/caredesk/gatekit/pkg/slogx"
)

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrRevokedToken = errors.New("revoked_token")
)

// TokenService issues and verifies the access/refresh pair. Both tokens of a
// pair share one token id; that id is the unit of revocation.
type TokenService struct {
	Signer     *jwtx.HS256
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssuePair mints a fresh token id and signs both tokens of the session.
func (s *TokenService) IssuePair(ctx context.Context, user domain.User) (domain.CredentialPair, error) {
	tokenID, err := cryptox.NewTokenID()
	if err != nil {
		return domain.CredentialPair{}, fmt.Errorf("generate token id: %w", err)
	}
	return s.issuePairWithID(ctx, user, tokenID)
}

func (s *TokenService) issuePairWithID(_ context.Context, user domain.User, tokenID string) (domain.CredentialPair, error) {
	now := time.Now()

	access, err := s.Signer.SignAccess(
		jwtx.NewAccessClaims(user.ID, user.Email, user.Name, tokenID, s.Issuer, s.AccessTTL, now))
	if err != nil {
		return domain.CredentialPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := s.Signer.SignRefresh(
		jwtx.NewRefreshClaims(user.ID, tokenID, s.Issuer, s.RefreshTTL, now))
	if err != nil {
		return domain.CredentialPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return domain.CredentialPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenID:      tokenID,
		ExpiresIn:    s.AccessTTL.Milliseconds(),
	}, nil
}

// VerifyAccess validates the token signature and claims, then consults the
// revocation list. If the list cannot be read the token is rejected: for
// authentication, unavailability must never widen access.
func (s *TokenService) VerifyAccess(ctx context.Context, token string) (jwtx.AccessClaims, error) {
	claims, err := s.Signer.VerifyAccess(token)
	if err != nil {
		return jwtx.AccessClaims{}, ErrInvalidToken
	}

	revoked, err := s.Store.Revocations().IsRevoked(ctx, claims.TokenID)
	if err != nil {
		slogx.FromContext(ctx).Error("revocation lookup failed, rejecting token", "err", err)
		return jwtx.AccessClaims{}, ErrInvalidToken
	}
	if revoked {
		return jwtx.AccessClaims{}, ErrRevokedToken
	}

	return claims, nil
}

// VerifyRefresh is the refresh-audience counterpart of VerifyAccess, with the
// same fail-closed revocation handling.
func (s *TokenService) VerifyRefresh(ctx context.Context, token string) (jwtx.RefreshClaims, error) {
	claims, err := s.Signer.VerifyRefresh(token)
	if err != nil {
		return jwtx.RefreshClaims{}, ErrInvalidToken
	}

	revoked, err := s.Store.Revocations().IsRevoked(ctx, claims.TokenID)
	if err != nil {
		slogx.FromContext(ctx).Error("revocation lookup failed, rejecting token", "err", err)
		return jwtx.RefreshClaims{}, ErrInvalidToken
	}
	if revoked {
		return jwtx.RefreshClaims{}, ErrRevokedToken
	}

	return claims, nil
}

// RefreshAccess exchanges a live refresh token for a new access token only.
// The refresh token is neither rotated nor re-signed, so the session ends at
// the horizon fixed when the pair was issued; the new access token carries
// the original token id so one revocation still kills the whole session.
func (s *TokenService) RefreshAccess(ctx context.Context, refreshToken string) (domain.User, domain.CredentialPair, error) {
	claims, err := s.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return domain.User{}, domain.CredentialPair{}, err
	}

	// Claims in the access token are re-derived from the user record, not
	// copied from the old token, so a renamed user gets fresh claims.
	user, err := s.Store.Users().GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, domain.CredentialPair{}, ErrInvalidToken
		}
		return domain.User{}, domain.CredentialPair{}, err
	}

	access, err := s.Signer.SignAccess(
		jwtx.NewAccessClaims(user.ID, user.Email, user.Name, claims.TokenID, s.Issuer, s.AccessTTL, time.Now()))
	if err != nil {
		return domain.User{}, domain.CredentialPair{}, fmt.Errorf("sign access token: %w", err)
	}

	return user, domain.CredentialPair{
		AccessToken: access,
		TokenID:     claims.TokenID,
		ExpiresIn:   s.AccessTTL.Milliseconds(),
	}, nil
}

// Revoke kills the session behind a refresh token. The entry lives until the
// refresh token would have expired on its own, after which housekeeping may
// drop it. Revoking an unknown or already-dead token is not an error.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.Signer.VerifyRefresh(refreshToken)
	if err != nil {
		// Expired or garbage tokens grant nothing; nothing to revoke.
		return nil
	}

	expiresAt := time.Now().Add(s.RefreshTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return s.Store.Revocations().Add(ctx, claims.TokenID, expiresAt)
}

// RevokeID revokes by bare token id, for sessions where only the access
// token is at hand. The expiry must cover the paired refresh token's
// remaining lifetime.
func (s *TokenService) RevokeID(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return s.Store.Revocations().Add(ctx, tokenID, expiresAt)
}
