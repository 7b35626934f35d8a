package repository

import (
	"context"

	"github.com/uptrace/bun"
)

// Repositories bundles every repository bound to the same database handle.
type Repositories struct {
	Users         UserRepository
	Roles         RoleRepository
	Permissions   PermissionRepository
	PendingTokens PendingTokenRepository
	RevokedJTIs   RevokedJTIRepository
}

// NewBunRepositories builds the repository set on db, which may be a *bun.DB
// or a bun.Tx.
func NewBunRepositories(db bun.IDB) Repositories {
	return Repositories{
		Users:         NewBunUserRepository(db),
		Roles:         NewBunRoleRepository(db),
		Permissions:   NewBunPermissionRepository(db),
		PendingTokens: NewBunPendingTokenRepository(db),
		RevokedJTIs:   NewBunRevokedJTIRepository(db),
	}
}

// Transactor runs a unit of work atomically. fn receives repositories bound to
// the transaction; returning an error rolls everything back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// BunTransactor implements Transactor with bun.DB.RunInTx.
type BunTransactor struct {
	db *bun.DB
}

// NewBunTransactor creates a Transactor over db.
func NewBunTransactor(db *bun.DB) *BunTransactor {
	return &BunTransactor{db: db}
}

// InTx implements Transactor.
func (t *BunTransactor) InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return t.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, NewBunRepositories(tx))
	})
}
