package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/salonbook/salonapi/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260301000001, down_20260301000001)
}

// up_20260301000001 creates the RBAC tables: roles, permissions, role_permissions and users.
func up_20260301000001(ctx context.Context, db *bun.DB) error {
	// 1. Create roles table
	fmt.Print(" [up] creating roles table...")
	_, err := db.NewCreateTable().
		Model((*models.Role)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create roles table: %w", err)
	}

	// Role names are unique regardless of case ("Admin" vs "admin")
	_, err = db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_name_lower ON roles (lower(name))`)
	if err != nil {
		return fmt.Errorf("failed to create roles name index: %w", err)
	}
	fmt.Println(" OK")

	// 2. Create permissions table
	fmt.Print(" [up] creating permissions table...")
	_, err = db.NewCreateTable().
		Model((*models.Permission)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create permissions table: %w", err)
	}
	fmt.Println(" OK")

	// 3. Create role_permissions association
	fmt.Print(" [up] creating role_permissions table...")
	_, err = db.NewCreateTable().
		Model((*models.RolePermission)(nil)).
		IfNotExists().
		ForeignKey(`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`).
		ForeignKey(`("permission_id") REFERENCES "permissions" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create role_permissions table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_id ON role_permissions(permission_id)`)
	if err != nil {
		return fmt.Errorf("failed to create role_permissions permission index: %w", err)
	}
	fmt.Println(" OK")

	// 4. Create users table
	fmt.Print(" [up] creating users table...")
	_, err = db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		ForeignKey(`("role_id") REFERENCES "roles" ("id")`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_users_role_id ON users(role_id)`)
	if err != nil {
		return fmt.Errorf("failed to create users role index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260301000001 drops the RBAC tables in reverse order
func down_20260301000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping RBAC tables...")

	tables := []any{
		(*models.User)(nil),
		(*models.RolePermission)(nil),
		(*models.Permission)(nil),
		(*models.Role)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table for %T: %w", model, err)
		}
	}
	fmt.Println(" OK")

	return nil
}
