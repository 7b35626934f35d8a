package iam

import (
	"context"
	"time"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/models"
)

// Service is the IAM facade used by HTTP handlers, middleware, the CLI and
// background jobs.
//
// Expected failures are returned as *Error; the HTTP layer maps the kind to a
// status. Any other error is an infrastructure failure.
type Service interface {
	// =========================================================================
	// Authentication (Request Path)
	// =========================================================================

	// AuthenticateRequest runs the authenticator chain.
	//
	// Returns:
	//   - (principal, nil) when an authenticator accepted the credentials
	//   - (nil, nil) when no credentials were presented
	//   - (nil, error) when credentials were presented but rejected
	//
	// Guest tokens resolve without any database access. Registered tokens
	// resolve permissions from the role join on every call.
	AuthenticateRequest(ctx context.Context, req AuthRequest) (*auth.Principal, error)

	// =========================================================================
	// Accounts and Sessions
	// =========================================================================

	// Register creates an unverified Customer account and emails a
	// verification code. Re-registering an unverified email replaces the
	// pending password and sends a fresh code; a verified email is a Conflict.
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)

	// VerifyEmail consumes the emailed code and signs the user in.
	VerifyEmail(ctx context.Context, email, code string) (*AuthResult, error)

	// Login checks credentials under the lockout policy.
	//
	// Unknown email and wrong password fail with the same Unauthenticated
	// message. An active lockout fails with RateLimited carrying the
	// remaining duration.
	Login(ctx context.Context, email, password string) (*AuthResult, error)

	// IssueGuestSession mints a token pair for a random session id. Nothing is
	// written to the database.
	IssueGuestSession(ctx context.Context) (*GuestSession, error)

	// Refresh rotates a token pair. For registered users the presented
	// refresh token is revoked so it cannot be replayed.
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)

	// Logout revokes the access token and, when given, the refresh token.
	// Guest tokens are simply dropped by the client.
	Logout(ctx context.Context, accessToken, refreshToken string) error

	// CurrentUser describes the principal for the /auth/me endpoint.
	CurrentUser(ctx context.Context, principal *auth.Principal) (*UserView, error)

	// =========================================================================
	// Password Flows (Purpose-Tagged Pending Tokens)
	// =========================================================================

	// VerifySetupToken is a pure read of a setup link token.
	VerifySetupToken(ctx context.Context, token string) (*SetupTokenInfo, error)

	// SetPassword consumes a setup token and stores the first password. The
	// account's email counts as verified afterwards.
	SetPassword(ctx context.Context, token, password string) error

	// ForgotPassword emails a reset link when the account exists. It never
	// reports whether the email is known.
	ForgotPassword(ctx context.Context, email string) error

	// ResetPassword consumes a reset token and replaces the password.
	ResetPassword(ctx context.Context, token, password string) error

	// ChangePassword replaces the password after checking the current one.
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error

	// SendChangePasswordOTP emails a numeric code. It never touches setup or
	// reset tokens of the same user.
	SendChangePasswordOTP(ctx context.Context, userID string) error

	// ChangePasswordWithOTP consumes the code and replaces the password.
	ChangePasswordWithOTP(ctx context.Context, userID, code, newPassword string) error

	// =========================================================================
	// Role and Permission Administration
	// =========================================================================

	// ListPermissions returns the permission catalog ordered by slug.
	ListPermissions(ctx context.Context) ([]models.Permission, error)

	// ListRoles returns every role with its sorted permission slugs.
	ListRoles(ctx context.Context) ([]models.RoleWithPermissions, error)

	// GetRole returns one role with its permission slugs.
	GetRole(ctx context.Context, roleID string) (*models.RoleWithPermissions, error)

	// CreateRole validates the name (case-insensitive uniqueness) and every
	// slug against the catalog, then inserts the role and its associations in
	// one transaction.
	CreateRole(ctx context.Context, in CreateRoleInput) (*models.RoleWithPermissions, error)

	// SetRolePermissions replaces the role's permission set in one
	// transaction and bumps the role version. Repeating a call is a no-op on
	// the resulting state.
	SetRolePermissions(ctx context.Context, roleID string, slugs []string) (*models.RoleWithPermissions, error)

	// DeleteRole removes a custom role. System roles are Forbidden and roles
	// still assigned to users are a Conflict.
	DeleteRole(ctx context.Context, roleID string) error

	// AssignUserRole gives the named role to the account with email,
	// creating a passwordless account when none exists. Accounts without a
	// password receive a setup link.
	AssignUserRole(ctx context.Context, email, roleName string) (*RoleAssignment, error)

	// BootstrapAdmin creates or promotes the first Admin. It refuses when an
	// Admin already exists unless in.Force is set.
	BootstrapAdmin(ctx context.Context, in BootstrapInput) (*models.User, error)

	// =========================================================================
	// Maintenance
	// =========================================================================

	// PurgeExpired removes stale pending tokens and expired revoked JTIs.
	PurgeExpired(ctx context.Context) (*PurgeResult, error)
}

// RegisterInput is the payload of Register.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// RegisterResult reports a pending registration.
type RegisterResult struct {
	UserID    string
	Email     string
	ExpiresAt time.Time // verification code expiry
}

// AuthResult is returned by flows that sign a registered user in.
type AuthResult struct {
	User   *UserView
	Tokens auth.TokenPair
}

// GuestSession is the result of IssueGuestSession.
type GuestSession struct {
	SessionID string
	Tokens    auth.TokenPair
}

// UserView is the public description of a principal.
type UserView struct {
	ID            string
	SessionID     string
	Email         string
	Name          string
	RoleName      string
	EmailVerified bool
	IsGuest       bool
	Permissions   []string
}

// SetupTokenInfo describes a valid setup link.
type SetupTokenInfo struct {
	Email     string
	ExpiresAt time.Time
}

// CreateRoleInput is the payload of CreateRole.
type CreateRoleInput struct {
	Name        string
	Description string
	Permissions []string
}

// RoleAssignment is the result of AssignUserRole.
type RoleAssignment struct {
	UserID       string
	Email        string
	RoleID       string
	RoleName     string
	Created      bool // a new account was created
	SetupPending bool // a setup link was issued
}

// BootstrapInput is the payload of BootstrapAdmin.
type BootstrapInput struct {
	Email    string
	Name     string
	Password string
	Force    bool
}

// PurgeResult counts rows removed by PurgeExpired.
type PurgeResult struct {
	PendingTokens int64
	RevokedJTIs   int64
}
