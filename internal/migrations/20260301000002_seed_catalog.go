package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260301000002, down_20260301000002)
}

// up_20260301000002 seeds the permission catalog and the built-in roles.
// Existing rows are left untouched so the migration is idempotent.
func up_20260301000002(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()

		fmt.Print(" [up] seeding permission catalog...")
		for _, seed := range auth.DefaultPermissions {
			perm := models.Permission{
				ID:          bunx.NewUUIDv7(),
				Slug:        seed.Slug,
				Description: seed.Description,
				CreatedAt:   now,
			}
			_, err := tx.NewInsert().
				Model(&perm).
				On("CONFLICT DO NOTHING"). // Idempotent
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to seed permission %s: %w", seed.Slug, err)
			}
		}
		fmt.Println(" OK")

		fmt.Print(" [up] seeding built-in roles...")
		for _, seed := range auth.DefaultRoles {
			roleID, err := ensureSeedRole(ctx, tx, seed, now)
			if err != nil {
				return err
			}

			for _, slug := range seed.Permissions {
				_, err := tx.NewRaw(`
					INSERT INTO role_permissions (role_id, permission_id)
					SELECT ?, p.id FROM permissions AS p WHERE p.slug = ?
					ON CONFLICT DO NOTHING`, roleID, slug).
					Exec(ctx)
				if err != nil {
					return fmt.Errorf("failed to grant %s to role %s: %w", slug, seed.Name, err)
				}
			}
		}
		fmt.Println(" OK")

		return nil
	})
}

// ensureSeedRole returns the id of the named role, inserting it as a system
// role when absent.
func ensureSeedRole(ctx context.Context, tx bun.Tx, seed auth.RoleSeed, now time.Time) (string, error) {
	var existing models.Role
	err := tx.NewSelect().
		Model(&existing).
		Where("lower(name) = lower(?)", seed.Name).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return existing.ID, nil
	}

	role := models.Role{
		ID:           bunx.NewUUIDv7(),
		Name:         seed.Name,
		Description:  seed.Description,
		IsSystemRole: true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	if _, err := tx.NewInsert().Model(&role).Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to seed role %s: %w", seed.Name, err)
	}
	return role.ID, nil
}

// down_20260301000002 removes seeded role grants, roles and permissions
func down_20260301000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing seeded catalog...")

	roleNames := make([]string, 0, len(auth.DefaultRoles))
	for _, r := range auth.DefaultRoles {
		roleNames = append(roleNames, r.Name)
	}

	if _, err := db.NewDelete().
		Model((*models.Role)(nil)).
		Where("name IN (?)", bun.In(roleNames)).
		Where("is_system_role = ?", true).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete seeded roles: %w", err)
	}

	if _, err := db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("slug IN (?)", bun.In(auth.AllDefaultPermissionSlugs())).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete seeded permissions: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
