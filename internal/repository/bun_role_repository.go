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

	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/db/models"
)

// ========================================
// Role Repository
// ========================================

// BunRoleRepository implements RoleRepository using Bun ORM
type BunRoleRepository struct {
	db bun.IDB
}

// NewBunRoleRepository creates a new Bun-based role repository
func NewBunRoleRepository(db bun.IDB) RoleRepository {
	return &BunRoleRepository{db: db}
}

// Create inserts a new role
func (r *BunRoleRepository) Create(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	if role.Version == 0 {
		role.Version = 1
	}

	_, err := r.db.NewInsert().
		Model(role).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// GetByID retrieves a role by ID
func (r *BunRoleRepository) GetByID(ctx context.Context, id string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// GetByName retrieves a role by name, ignoring case
func (r *BunRoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("lower(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("get role by name: %w", err)
	}
	return role, nil
}

// GetWithPermissions retrieves a role and its sorted permission slugs
func (r *BunRoleRepository) GetWithPermissions(ctx context.Context, id string) (*models.RoleWithPermissions, error) {
	role, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	grants, err := r.loadGrants(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.RoleWithPermissions{Role: *role, Permissions: grants[id]}, nil
}

// List returns every role ordered by name, each with its permission slugs.
// Roles without permissions carry an empty (non-nil) slice.
func (r *BunRoleRepository) List(ctx context.Context) ([]models.RoleWithPermissions, error) {
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	grants, err := r.loadGrants(ctx, "")
	if err != nil {
		return nil, err
	}

	result := make([]models.RoleWithPermissions, 0, len(roles))
	for _, role := range roles {
		slugs := grants[role.ID]
		if slugs == nil {
			slugs = []string{}
		}
		result = append(result, models.RoleWithPermissions{Role: role, Permissions: slugs})
	}
	return result, nil
}

type grantRow struct {
	RoleID string `bun:"role_id"`
	Slug   string `bun:"slug"`
}

// loadGrants maps role id to sorted slugs, for one role or, with an empty
// roleID, for all roles.
func (r *BunRoleRepository) loadGrants(ctx context.Context, roleID string) (map[string][]string, error) {
	var rows []grantRow
	q := r.db.NewSelect().
		TableExpr("role_permissions AS rp").
		ColumnExpr("rp.role_id, p.slug").
		Join("JOIN permissions AS p ON p.id = rp.permission_id")
	if roleID != "" {
		q = q.Where("rp.role_id = ?", roleID)
	}
	if err := q.Scan(ctx, &rows); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}

	grants := make(map[string][]string)
	for _, row := range rows {
		grants[row.RoleID] = append(grants[row.RoleID], row.Slug)
	}
	for _, slugs := range grants {
		sort.Strings(slugs)
	}
	if roleID != "" && grants[roleID] == nil {
		grants[roleID] = []string{}
	}
	return grants, nil
}

// Delete deletes a role by ID; its associations cascade
func (r *BunRoleRepository) Delete(ctx context.Context, id string) error {
	// Explicit delete keeps SQLite without foreign_keys consistent too
	if _, err := r.db.NewDelete().
		Model((*models.RolePermission)(nil)).
		Where("role_id = ?", id).
		Exec(ctx); err != nil {
		return fmt.Errorf("delete role permissions: %w", err)
	}

	result, err := r.db.NewDelete().
		Model((*models.Role)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return requireAffected(result, "role", id)
}

// ReplacePermissions swaps the role's association set for permissionIDs
func (r *BunRoleRepository) ReplacePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if _, err := r.db.NewDelete().
		Model((*models.RolePermission)(nil)).
		Where("role_id = ?", roleID).
		Exec(ctx); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}

	if len(permissionIDs) == 0 {
		return nil
	}

	rows := make([]models.RolePermission, 0, len(permissionIDs))
	for _, pid := range permissionIDs {
		rows = append(rows, models.RolePermission{RoleID: roleID, PermissionID: pid})
	}
	if _, err := r.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert role permissions: %w", err)
	}
	return nil
}

// BumpVersion increments the role's version counter
func (r *BunRoleRepository) BumpVersion(ctx context.Context, roleID string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Role)(nil)).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", roleID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bump role version: %w", err)
	}
	return requireAffected(result, "role", roleID)
}

// ========================================
// Permission Repository
// ========================================

// BunPermissionRepository implements PermissionRepository using Bun ORM
type BunPermissionRepository struct {
	db bun.IDB
}

// NewBunPermissionRepository creates a new Bun-based permission repository
func NewBunPermissionRepository(db bun.IDB) PermissionRepository {
	return &BunPermissionRepository{db: db}
}

// List returns the full catalog ordered by slug
func (r *BunPermissionRepository) List(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	err := r.db.NewSelect().
		Model(&perms).
		Order("slug ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

// GetBySlugs returns the permissions whose slug is in slugs
func (r *BunPermissionRepository) GetBySlugs(ctx context.Context, slugs []string) ([]models.Permission, error) {
	if len(slugs) == 0 {
		return []models.Permission{}, nil
	}

	var perms []models.Permission
	err := r.db.NewSelect().
		Model(&perms).
		Where("slug IN (?)", bun.In(slugs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get permissions by slug: %w", err)
	}
	return perms, nil
}

// Create adds a catalog entry
func (r *BunPermissionRepository) Create(ctx context.Context, permission *models.Permission) error {
	if permission.ID == "" {
		permission.ID = bunx.NewUUIDv7()
	}
	if permission.CreatedAt.IsZero() {
		permission.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NewInsert().Model(permission).Exec(ctx); err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}
