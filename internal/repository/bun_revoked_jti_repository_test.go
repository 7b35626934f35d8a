package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonbook/salonapi/internal/db/dbtest"
	"github.com/salonbook/salonapi/internal/db/models"
)

func TestBunRevokedJTIRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := dbtest.NewSQLite(t)
	repo := NewBunRevokedJTIRepository(db)
	now := time.Now().UTC()

	revoked, err := repo.IsRevoked(ctx, "jti-live")
	require.NoError(t, err)
	assert.False(t, revoked)

	listed, err := repo.Create(ctx, &models.RevokedJTI{JTI: "jti-live", Subject: "u1", Exp: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, listed)
	listed, err = repo.Create(ctx, &models.RevokedJTI{JTI: "jti-live", Subject: "u1", Exp: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, listed, "second revocation of the same jti must not report a fresh listing")
	_, err = repo.Create(ctx, &models.RevokedJTI{JTI: "jti-old", Subject: "u1", Exp: now.Add(-48 * time.Hour)})
	require.NoError(t, err)

	revoked, err = repo.IsRevoked(ctx, "jti-live")
	require.NoError(t, err)
	assert.True(t, revoked)

	n, err := repo.DeleteExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	revoked, err = repo.IsRevoked(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, revoked)
}
