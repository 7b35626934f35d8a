package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/salonbook/salonapi/internal/db/models"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db bun.IDB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db bun.IDB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// NormalizeEmail is the canonical form stored in users.email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user into the database
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = NormalizeEmail(user.Email)
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(user).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by ID: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *BunUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("email = ?", NormalizeEmail(email)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// Update writes the given columns of user and bumps updated_at
func (r *BunUserRepository) Update(ctx context.Context, user *models.User, columns ...string) error {
	if len(columns) == 0 {
		return fmt.Errorf("update user %s: no columns given", user.ID)
	}
	user.Email = NormalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()
	result, err := r.db.NewUpdate().
		Model(user).
		Column(append(columns, "updated_at")...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(result, "user", user.ID)
}

// UpdateLoginState writes only the lockout bookkeeping columns
func (r *BunUserRepository) UpdateLoginState(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	result, err := r.db.NewUpdate().
		Model(user).
		Column("failed_login_attempts", "lockout_until", "last_login_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update login state: %w", err)
	}
	return requireAffected(result, "user", user.ID)
}

// SetPassword stores a new hash and resets the lockout counters
func (r *BunUserRepository) SetPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("failed_login_attempts = 0").
		Set("lockout_until = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return requireAffected(result, "user", userID)
}

type principalRow struct {
	UserID        string         `bun:"user_id"`
	Email         string         `bun:"email"`
	EmailVerified bool           `bun:"email_verified"`
	DisabledAt    *time.Time     `bun:"disabled_at"`
	RoleName      sql.NullString `bun:"role_name"`
	Slug          sql.NullString `bun:"slug"`
}

// ResolvePrincipal joins users -> roles -> role_permissions -> permissions and
// folds the rows into one UserPrincipal. Left joins keep users without a role
// or without permissions.
func (r *BunUserRepository) ResolvePrincipal(ctx context.Context, userID string) (*UserPrincipal, error) {
	var rows []principalRow
	err := r.db.NewSelect().
		TableExpr("users AS u").
		ColumnExpr("u.id AS user_id, u.email, u.email_verified, u.disabled_at").
		ColumnExpr("r.name AS role_name").
		ColumnExpr("p.slug AS slug").
		Join("LEFT JOIN roles AS r ON r.id = u.role_id").
		Join("LEFT JOIN role_permissions AS rp ON rp.role_id = r.id").
		Join("LEFT JOIN permissions AS p ON p.id = rp.permission_id").
		Where("u.id = ?", userID).
		Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve principal: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	first := rows[0]
	principal := &UserPrincipal{
		UserID:        first.UserID,
		Email:         first.Email,
		EmailVerified: first.EmailVerified,
		Disabled:      first.DisabledAt != nil,
		RoleName:      first.RoleName.String,
	}

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if !row.Slug.Valid {
			continue
		}
		if _, dup := seen[row.Slug.String]; dup {
			continue
		}
		seen[row.Slug.String] = struct{}{}
		principal.Permissions = append(principal.Permissions, row.Slug.String)
	}
	sort.Strings(principal.Permissions)

	return principal, nil
}

// CountByRole returns the number of users assigned to roleID
func (r *BunUserRepository) CountByRole(ctx context.Context, roleID string) (int, error) {
	n, err := r.db.NewSelect().
		Model((*models.User)(nil)).
		Where("role_id = ?", roleID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return n, nil
}

func requireAffected(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
