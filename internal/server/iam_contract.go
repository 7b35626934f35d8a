package server

import (
	"context"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/models"
	"github.com/salonbook/salonapi/internal/services/iam"
)

// iamService lists the IAM methods the HTTP handlers call. Declaring it here
// keeps handlers testable with a narrow fake and proves at compile time that
// iam.Service satisfies it.
type iamService interface {
	// Account lifecycle
	Register(ctx context.Context, in iam.RegisterInput) (*iam.RegisterResult, error)
	VerifyEmail(ctx context.Context, email, code string) (*iam.AuthResult, error)
	Login(ctx context.Context, email, password string) (*iam.AuthResult, error)
	IssueGuestSession(ctx context.Context) (*iam.GuestSession, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	CurrentUser(ctx context.Context, principal *auth.Principal) (*iam.UserView, error)

	// Passwords
	VerifySetupToken(ctx context.Context, token string) (*iam.SetupTokenInfo, error)
	SetPassword(ctx context.Context, token, password string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	SendChangePasswordOTP(ctx context.Context, userID string) error
	ChangePasswordWithOTP(ctx context.Context, userID, code, newPassword string) error

	// Role administration
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	ListRoles(ctx context.Context) ([]models.RoleWithPermissions, error)
	GetRole(ctx context.Context, roleID string) (*models.RoleWithPermissions, error)
	CreateRole(ctx context.Context, in iam.CreateRoleInput) (*models.RoleWithPermissions, error)
	SetRolePermissions(ctx context.Context, roleID string, slugs []string) (*models.RoleWithPermissions, error)
	DeleteRole(ctx context.Context, roleID string) error
	AssignUserRole(ctx context.Context, email, roleName string) (*iam.RoleAssignment, error)
}

var _ iamService = (iam.Service)(nil)
