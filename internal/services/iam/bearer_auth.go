package iam

import (
	"context"
	"errors"
	"fmt"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/repository"
)

// BearerAuthenticator authenticates "Authorization: Bearer <access token>".
//
//  1. Return (nil, nil) if no bearer token is present
//  2. Verify signature, expiry and token kind (no DB access)
//  3. Guest claims: build the guest principal from the token alone
//  4. User claims: check the jti deny-list, then resolve the user with its
//     role and aggregated permission slugs
//
// This authenticator is stateless and safe for concurrent use.
type BearerAuthenticator struct {
	tokens      *auth.TokenService
	users       repository.UserRepository
	revokedJTIs repository.RevokedJTIRepository
}

// NewBearerAuthenticator creates a bearer token authenticator.
func NewBearerAuthenticator(
	tokens *auth.TokenService,
	users repository.UserRepository,
	revokedJTIs repository.RevokedJTIRepository,
) *BearerAuthenticator {
	return &BearerAuthenticator{tokens: tokens, users: users, revokedJTIs: revokedJTIs}
}

// Authenticate implements Authenticator.
func (a *BearerAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*auth.Principal, error) {
	token, ok := auth.BearerToken(req.Headers)
	if !ok {
		return nil, nil
	}

	claims, err := a.tokens.Verify(token, auth.TokenKindAccess)
	if err != nil {
		e := Unauthenticated("invalid or expired token")
		e.Err = err
		return nil, e
	}

	if claims.IsGuest {
		return auth.NewGuestPrincipal(claims.SessionID), nil
	}

	revoked, err := a.revokedJTIs.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("check revocation status: %w", err)
	}
	if revoked {
		return nil, Unauthenticated("token has been revoked")
	}

	resolved, err := a.users.ResolvePrincipal(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Unauthenticated("account no longer exists")
		}
		return nil, fmt.Errorf("resolve principal: %w", err)
	}
	if resolved.Disabled {
		return nil, Unauthenticated("account is disabled")
	}
	if !resolved.EmailVerified {
		return nil, EmailNotVerified()
	}

	return auth.NewRegisteredPrincipal(resolved.UserID, resolved.Email, resolved.RoleName, resolved.Permissions), nil
}
