package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a salon account (customer, expert or staff).
// PasswordHash stays nil until the account owner completes the setup flow.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                  string     `bun:"id,pk,type:uuid"`
	Email               string     `bun:"email,notnull,unique"` // always lower-cased
	Name                string     `bun:"name"`
	PasswordHash        *string    `bun:"password_hash"`
	RoleID              *string    `bun:"role_id,type:uuid"` // FK to roles(id)
	EmailVerified       bool       `bun:"email_verified,notnull,default:false"`
	FailedLoginAttempts int        `bun:"failed_login_attempts,notnull,default:0"`
	LockoutUntil        *time.Time `bun:"lockout_until"`
	CreatedAt           time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt         *time.Time `bun:"last_login_at"`
	DisabledAt          *time.Time `bun:"disabled_at"`
}

// HasPassword reports whether the account has completed password setup.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// LockedUntil returns the remaining lockout at now, or zero when not locked.
func (u *User) LockedUntil(now time.Time) time.Duration {
	if u == nil || u.LockoutUntil == nil || !u.LockoutUntil.After(now) {
		return 0
	}
	return u.LockoutUntil.Sub(now)
}

// Role is a named bundle of permissions. System roles are seeded and cannot be
// renamed or deleted.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID           string    `bun:"id,pk,type:uuid"`
	Name         string    `bun:"name,notnull"` // unique on lower(name)
	Description  string    `bun:"description"`
	IsSystemRole bool      `bun:"is_system_role,notnull,default:false"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
	Version      int       `bun:"version,notnull,default:1"`
}

// Permission is one entry of the capability catalog, identified by a dotted slug
// such as "appointments.manage_all".
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	ID          string    `bun:"id,pk,type:uuid"`
	Slug        string    `bun:"slug,notnull,unique"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// RolePermission associates a role with a permission.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	RoleID       string `bun:"role_id,pk,type:uuid"`       // FK to roles(id)
	PermissionID string `bun:"permission_id,pk,type:uuid"` // FK to permissions(id)
}

// RoleWithPermissions is a role together with its aggregated permission slugs.
type RoleWithPermissions struct {
	Role
	Permissions []string
}

// TokenPurpose tags a pending token with the flow it belongs to.
type TokenPurpose string

const (
	PurposeSetup             TokenPurpose = "setup"
	PurposePasswordReset     TokenPurpose = "password_reset"
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposeChangePasswordOTP TokenPurpose = "change_password_otp"
)

// PendingToken is a single-use, time-boxed secret tied to a user and a purpose.
// Only the SHA-256 of the secret is stored. Each (user_id, purpose) pair holds
// at most one live token, so issuing one purpose never disturbs another.
type PendingToken struct {
	bun.BaseModel `bun:"table:pending_tokens,alias:pt"`

	ID         string       `bun:"id,pk,type:uuid"`
	UserID     string       `bun:"user_id,notnull,type:uuid"` // FK to users(id)
	Purpose    TokenPurpose `bun:"purpose,notnull"`
	TokenHash  string       `bun:"token_hash,notnull"`
	ExpiresAt  time.Time    `bun:"expires_at,notnull"`
	ConsumedAt *time.Time   `bun:"consumed_at"`
	Attempts   int          `bun:"attempts,notnull,default:0"` // wrong codes entered against this slot
	CreatedAt  time.Time    `bun:"created_at,notnull,default:current_timestamp"`
}

// Expired reports whether the token is past its expiry at now.
func (t *PendingToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RevokedJTI tracks revoked JWT tokens by their JTI claim for denylist-based revocation
type RevokedJTI struct {
	bun.BaseModel `bun:"table:revoked_jti,alias:rjti"`

	JTI       string    `bun:"jti,pk"`                                       // JWT ID (jti claim from token)
	Subject   string    `bun:"subject,notnull"`                              // users.id of the token owner
	Exp       time.Time `bun:"exp,notnull"`                                  // Token expiration time (for cleanup)
	RevokedAt time.Time `bun:"revoked_at,notnull,default:current_timestamp"` // When the token was revoked
}
