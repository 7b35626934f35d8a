package repository

import (
	"context"
	"errors"
	"time"

	"github.com/salonbook/salonapi/internal/db/models"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// UserPrincipal is the result of resolving a user id into an identity with
// its role name and the distinct permission slugs of that role.
type UserPrincipal struct {
	UserID        string
	Email         string
	EmailVerified bool
	Disabled      bool
	RoleName      string
	Permissions   []string // distinct, sorted
}

// UserRepository exposes persistence operations for salon accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Update writes only the named columns (plus updated_at), so concurrent
	// writers of other columns such as the lockout counters are not undone.
	Update(ctx context.Context, user *models.User, columns ...string) error

	// UpdateLoginState persists failed_login_attempts, lockout_until and last_login_at.
	UpdateLoginState(ctx context.Context, user *models.User) error

	// SetPassword stores a new bcrypt hash and clears any lockout.
	SetPassword(ctx context.Context, userID, passwordHash string) error

	// ResolvePrincipal loads the user with its role and aggregated permission
	// slugs in a single query.
	ResolvePrincipal(ctx context.Context, userID string) (*UserPrincipal, error)

	// CountByRole returns how many accounts reference the role.
	CountByRole(ctx context.Context, roleID string) (int, error)
}

// RoleRepository exposes persistence operations for roles and their
// permission associations.
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByID(ctx context.Context, id string) (*models.Role, error)
	// GetByName matches case-insensitively.
	GetByName(ctx context.Context, name string) (*models.Role, error)
	GetWithPermissions(ctx context.Context, id string) (*models.RoleWithPermissions, error)
	List(ctx context.Context) ([]models.RoleWithPermissions, error)
	Delete(ctx context.Context, id string) error

	// ReplacePermissions deletes every association of the role and inserts the
	// given permission ids. Callers run it inside a transaction.
	ReplacePermissions(ctx context.Context, roleID string, permissionIDs []string) error

	// BumpVersion increments roles.version and touches updated_at.
	BumpVersion(ctx context.Context, roleID string) error
}

// PermissionRepository exposes the permission catalog.
type PermissionRepository interface {
	List(ctx context.Context) ([]models.Permission, error)
	// GetBySlugs returns the catalog entries matching slugs; unknown slugs are
	// simply absent from the result.
	GetBySlugs(ctx context.Context, slugs []string) ([]models.Permission, error)
	Create(ctx context.Context, permission *models.Permission) error
}

// PendingTokenRepository stores purpose-tagged single-use tokens.
type PendingTokenRepository interface {
	// Upsert replaces the live token of (user_id, purpose).
	Upsert(ctx context.Context, token *models.PendingToken) error
	GetByHash(ctx context.Context, purpose models.TokenPurpose, tokenHash string) (*models.PendingToken, error)
	GetByUserPurpose(ctx context.Context, userID string, purpose models.TokenPurpose) (*models.PendingToken, error)
	// MarkConsumed sets consumed_at only if the token is still unconsumed.
	// Returns ErrNotFound when another caller consumed it first.
	MarkConsumed(ctx context.Context, id string, at time.Time) error
	// RecordFailedAttempt counts a wrong code against a live token and
	// consumes it at the attempt that reaches maxAttempts.
	RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, at time.Time) error
	// DeleteStale removes tokens that expired or were consumed before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// RevokedJTIRepository manages the JWT revocation denylist.
type RevokedJTIRepository interface {
	// Create deny-lists a JTI and reports whether this call listed it; false
	// means it was already revoked.
	Create(ctx context.Context, revokedJTI *models.RevokedJTI) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, gracePeriod time.Duration) (int64, error)
}
