package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/salonbook/salonapi/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260301000003, down_20260301000003)
}

// up_20260301000003 creates pending_tokens, one live slot per (user, purpose)
func up_20260301000003(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating pending_tokens table...")

	_, err := db.NewCreateTable().
		Model((*models.PendingToken)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create pending_tokens table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_tokens_user_purpose ON pending_tokens(user_id, purpose)`)
	if err != nil {
		return fmt.Errorf("failed to create pending_tokens slot index: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_pending_tokens_token_hash ON pending_tokens(token_hash)`)
	if err != nil {
		return fmt.Errorf("failed to create pending_tokens hash index: %w", err)
	}

	// Cleanup scans by expiry
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_pending_tokens_expires_at ON pending_tokens(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create pending_tokens expiry index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260301000003 drops pending_tokens table
func down_20260301000003(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping pending_tokens table...")

	_, err := db.NewDropTable().
		Model((*models.PendingToken)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop pending_tokens table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
