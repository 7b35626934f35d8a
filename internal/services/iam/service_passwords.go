package iam

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/models"
	"github.com/salonbook/salonapi/internal/repository"
	"github.com/salonbook/salonapi/internal/telemetry"
)

// Email link paths served by the web client.
const (
	setupPasswordPath = "/setup-password"
	resetPasswordPath = "/reset-password"
)

// VerifySetupToken implements Service.
func (s *iamService) VerifySetupToken(ctx context.Context, token string) (*SetupTokenInfo, error) {
	pending, err := s.verifyLinkToken(ctx, s.repos.PendingTokens, models.PurposeSetup, token)
	if err != nil {
		return nil, err
	}
	user, err := s.repos.Users.GetByID(ctx, pending.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, InvalidToken("invalid or already used token")
		}
		return nil, err
	}
	return &SetupTokenInfo{Email: user.Email, ExpiresAt: pending.ExpiresAt}, nil
}

// SetPassword implements Service.
func (s *iamService) SetPassword(ctx context.Context, token, password string) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.SetPassword",
		attribute.String(telemetry.AttrTokenPurpose, string(models.PurposeSetup)),
	)
	defer span.End()

	hash, err := hashNewPassword(password)
	if err != nil {
		return err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pending, err := s.verifyLinkToken(ctx, repos.PendingTokens, models.PurposeSetup, token)
		if err != nil {
			return err
		}
		if err := s.consume(ctx, repos.PendingTokens, pending); err != nil {
			return err
		}
		user, err := repos.Users.GetByID(ctx, pending.UserID)
		if err != nil {
			return fmt.Errorf("load setup token owner: %w", err)
		}
		user.PasswordHash = &hash
		user.EmailVerified = true
		user.FailedLoginAttempts = 0
		user.LockoutUntil = nil
		return repos.Users.Update(ctx, user,
			"password_hash", "email_verified", "failed_login_attempts", "lockout_until")
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

// ForgotPassword implements Service.
func (s *iamService) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.ForgotPassword")
	defer span.End()

	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debug("password reset requested for unknown email")
			return nil
		}
		telemetry.RecordError(span, err)
		return err
	}
	if user.DisabledAt != nil {
		return nil
	}

	secret, expiresAt, err := s.issueLinkToken(ctx, s.repos.PendingTokens, user.ID, models.PurposePasswordReset, s.cfg.Auth.ResetTokenTTL)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	s.mail(ctx, user.Email, TemplateResetPassword, map[string]any{
		"name":      user.Name,
		"link":      s.link(resetPasswordPath, secret),
		"expiresAt": expiresAt,
	})
	return nil
}

// ResetPassword implements Service.
func (s *iamService) ResetPassword(ctx context.Context, token, password string) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.ResetPassword",
		attribute.String(telemetry.AttrTokenPurpose, string(models.PurposePasswordReset)),
	)
	defer span.End()

	hash, err := hashNewPassword(password)
	if err != nil {
		return err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pending, err := s.verifyLinkToken(ctx, repos.PendingTokens, models.PurposePasswordReset, token)
		if err != nil {
			return err
		}
		if err := s.consume(ctx, repos.PendingTokens, pending); err != nil {
			return err
		}
		return repos.Users.SetPassword(ctx, pending.UserID, hash)
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

// ChangePassword implements Service.
func (s *iamService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if userID == "" {
		return GuestRestricted()
	}
	user, err := s.loadActiveUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() || !auth.CheckPassword(*user.PasswordHash, currentPassword) {
		return Validation("current password is incorrect", map[string]string{"currentPassword": "is incorrect"})
	}

	hash, err := hashNewPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repos.Users.SetPassword(ctx, user.ID, hash); err != nil {
		return err
	}
	s.log.WithField("user_id", user.ID).Info("password changed")
	return nil
}

// SendChangePasswordOTP implements Service.
func (s *iamService) SendChangePasswordOTP(ctx context.Context, userID string) error {
	if userID == "" {
		return GuestRestricted()
	}
	user, err := s.loadActiveUser(ctx, userID)
	if err != nil {
		return err
	}

	code, expiresAt, err := s.issueCode(ctx, s.repos.PendingTokens, user.ID, models.PurposeChangePasswordOTP, s.cfg.Auth.OTPTTL)
	if err != nil {
		return err
	}
	s.mail(ctx, user.Email, TemplateChangePasswordOTP, map[string]any{
		"name":      user.Name,
		"code":      code,
		"expiresAt": expiresAt,
	})
	return nil
}

// ChangePasswordWithOTP implements Service.
func (s *iamService) ChangePasswordWithOTP(ctx context.Context, userID, code, newPassword string) error {
	if userID == "" {
		return GuestRestricted()
	}
	hash, err := hashNewPassword(newPassword)
	if err != nil {
		return err
	}

	return s.inCodeTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pending, err := s.verifyCode(ctx, repos.PendingTokens, userID, models.PurposeChangePasswordOTP, code)
		if err != nil {
			return err
		}
		if err := s.consume(ctx, repos.PendingTokens, pending); err != nil {
			return err
		}
		return repos.Users.SetPassword(ctx, userID, hash)
	})
}

func (s *iamService) loadActiveUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Unauthenticated("account no longer exists")
		}
		return nil, err
	}
	if user.DisabledAt != nil {
		return nil, Unauthenticated("account is disabled")
	}
	return user, nil
}

func hashNewPassword(password string) (string, error) {
	if err := auth.ValidatePassword(password); err != nil {
		return "", Validation("invalid password", map[string]string{"password": err.Error()})
	}
	return auth.HashPassword(password)
}
