package cmdutil

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/config"
	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/notify"
	"github.com/salonbook/salonapi/internal/repository"
	"github.com/salonbook/salonapi/internal/services/iam"
)

// IAMServiceBundle bundles the service with its underlying DB connection so callers can
// reuse the connection for other repositories when necessary.
type IAMServiceBundle struct {
	Service iam.Service
	DB      *bun.DB
}

// Close releases the underlying database connection.
func (b *IAMServiceBundle) Close() {
	if b == nil || b.DB == nil {
		return
	}
	_ = bunx.Close(b.DB)
}

// NewIAMServiceBundle centralizes IAM service construction for CLI commands.
// Mail goes through the configured mailer so setup links issued from the CLI
// reach the recipient; events are dropped since no clients are attached.
func NewIAMServiceBundle(cfg *config.Config, log logrus.FieldLogger) (*IAMServiceBundle, error) {
	db, err := bunx.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		_ = bunx.Close(db)
		return nil, err
	}

	mailer, err := notify.NewMailer(cfg.SMTP, log)
	if err != nil {
		_ = bunx.Close(db)
		return nil, fmt.Errorf("failed to configure mailer: %w", err)
	}

	svc, err := iam.NewIAMService(iam.Dependencies{
		Transactor:   repository.NewBunTransactor(db),
		Repositories: repository.NewBunRepositories(db),
		Tokens:       tokens,
		Publisher:    notify.NopPublisher{},
		Mailer:       mailer,
		Logger:       log,
	}, iam.ConfigFrom(cfg))
	if err != nil {
		_ = bunx.Close(db)
		return nil, fmt.Errorf("failed to create IAM service: %w", err)
	}

	return &IAMServiceBundle{Service: svc, DB: db}, nil
}

// SystemContext marks ctx as running on behalf of the operator at the console.
func SystemContext(ctx context.Context) context.Context {
	return auth.SetPrincipal(ctx, auth.SystemPrincipal())
}
