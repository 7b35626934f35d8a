package iam

import (
	"context"
	"net/http"

	"github.com/salonbook/salonapi/internal/auth"
)

// Authenticator validates credentials and returns the resolved Principal.
//
// Implementations:
//   - BootstrapTokenAuthenticator: reserved-prefix operator token (opt-in, non-production)
//   - BearerAuthenticator: HS256 access tokens for registered users and guests
//
// Return values:
//   - (principal, nil): Authentication successful
//   - (nil, nil): Credentials not present or not for this authenticator, try next
//   - (nil, error): Authentication failed, stop the chain
type Authenticator interface {
	Authenticate(ctx context.Context, req AuthRequest) (*auth.Principal, error)
}

// AuthRequest wraps the request data authenticators look at.
type AuthRequest struct {
	// Headers contains HTTP headers (including Authorization)
	Headers http.Header
}

// NewAuthRequest builds an AuthRequest from an incoming HTTP request.
func NewAuthRequest(r *http.Request) AuthRequest {
	return AuthRequest{Headers: r.Header}
}
