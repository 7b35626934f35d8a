package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/db/models"
)

// BunPendingTokenRepository implements PendingTokenRepository using Bun ORM
type BunPendingTokenRepository struct {
	db bun.IDB
}

// NewBunPendingTokenRepository creates a new Bun-based pending token repository
func NewBunPendingTokenRepository(db bun.IDB) PendingTokenRepository {
	return &BunPendingTokenRepository{db: db}
}

// Upsert writes the token into its (user_id, purpose) slot, replacing any
// previous token of the same purpose.
func (r *BunPendingTokenRepository) Upsert(ctx context.Context, token *models.PendingToken) error {
	if token.ID == "" {
		token.ID = bunx.NewUUIDv7()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	token.ConsumedAt = nil
	token.Attempts = 0

	_, err := r.db.NewInsert().
		Model(token).
		On("CONFLICT (user_id, purpose) DO UPDATE").
		Set("token_hash = EXCLUDED.token_hash").
		Set("expires_at = EXCLUDED.expires_at").
		Set("consumed_at = NULL").
		Set("attempts = 0").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert pending token: %w", err)
	}
	return nil
}

// GetByHash finds a token of the given purpose by its hash, consumed or not
func (r *BunPendingTokenRepository) GetByHash(ctx context.Context, purpose models.TokenPurpose, tokenHash string) (*models.PendingToken, error) {
	token := new(models.PendingToken)
	err := r.db.NewSelect().
		Model(token).
		Where("purpose = ?", purpose).
		Where("token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s token: %w", purpose, ErrNotFound)
		}
		return nil, fmt.Errorf("get pending token: %w", err)
	}
	return token, nil
}

// GetByUserPurpose returns the token occupying a user's slot for purpose
func (r *BunPendingTokenRepository) GetByUserPurpose(ctx context.Context, userID string, purpose models.TokenPurpose) (*models.PendingToken, error) {
	token := new(models.PendingToken)
	err := r.db.NewSelect().
		Model(token).
		Where("user_id = ?", userID).
		Where("purpose = ?", purpose).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s token for user %s: %w", purpose, userID, ErrNotFound)
		}
		return nil, fmt.Errorf("get pending token by user: %w", err)
	}
	return token, nil
}

// MarkConsumed flips consumed_at once; a second call affects no row
func (r *BunPendingTokenRepository) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*models.PendingToken)(nil)).
		Set("consumed_at = ?", at).
		Where("id = ?", id).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("consume pending token: %w", err)
	}
	return requireAffected(result, "pending token", id)
}

// RecordFailedAttempt bumps attempts in one statement so concurrent guesses
// cannot share a count. Consumed tokens are left alone.
func (r *BunPendingTokenRepository) RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.PendingToken)(nil)).
		Set("attempts = attempts + 1").
		Set("consumed_at = CASE WHEN attempts + 1 >= ? THEN ? ELSE consumed_at END", maxAttempts, at).
		Where("id = ?", id).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	return nil
}

// DeleteStale removes tokens expired or consumed before cutoff
func (r *BunPendingTokenRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*models.PendingToken)(nil)).
		WhereOr("expires_at < ?", cutoff).
		WhereOr("consumed_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete stale pending tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return n, nil
}
