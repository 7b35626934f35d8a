package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/salonbook/salonapi/internal/db/models"
)

// BunRevokedJTIRepository stores the access-token deny-list written by logout
// and read on every authenticated request.
type BunRevokedJTIRepository struct {
	db bun.IDB
}

func NewBunRevokedJTIRepository(db bun.IDB) RevokedJTIRepository {
	return &BunRevokedJTIRepository{db: db}
}

// Create deny-lists entry.JTI until entry.Exp. A JTI that is already listed
// keeps its original row and Create returns false, which makes the insert
// usable as an atomic claim on a single-use token.
func (r *BunRevokedJTIRepository) Create(ctx context.Context, entry *models.RevokedJTI) (bool, error) {
	if entry.RevokedAt.IsZero() {
		entry.RevokedAt = time.Now().UTC()
	}
	res, err := r.db.NewInsert().Model(entry).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("revoke jti %s: %w", entry.JTI, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke jti %s: %w", entry.JTI, err)
	}
	return n == 1, nil
}

func (r *BunRevokedJTIRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	listed, err := r.db.NewSelect().
		Model((*models.RevokedJTI)(nil)).
		Where("rjti.jti = ?", jti).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("look up revoked jti: %w", err)
	}
	return listed, nil
}

// DeleteExpired drops entries whose token expired more than grace ago. Such
// tokens are already rejected as expired, so the row no longer matters.
func (r *BunRevokedJTIRepository) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.RevokedJTI)(nil)).
		Where("exp < ?", time.Now().UTC().Add(-grace)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge revoked jtis: %w", err)
	}
	return res.RowsAffected()
}
