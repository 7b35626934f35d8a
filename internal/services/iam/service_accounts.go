package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/db/models"
	"github.com/salonbook/salonapi/internal/repository"
	"github.com/salonbook/salonapi/internal/telemetry"
)

func invalidCredentials() *Error {
	return Unauthenticated("invalid email or password")
}

// Register implements Service.
func (s *iamService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.Register")
	defer span.End()

	email := repository.NormalizeEmail(in.Email)
	if !ValidEmail(email) {
		return nil, Validation("invalid registration", map[string]string{"email": "must be a valid email address"})
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return nil, Validation("invalid registration", map[string]string{"password": err.Error()})
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var (
		user      *models.User
		code      string
		result    RegisterResult
		verifyTTL = s.cfg.Auth.VerificationCodeTTL
	)
	err = s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		existing, err := repos.Users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			if existing.EmailVerified {
				return Conflict("an account with this email already exists")
			}
			existing.PasswordHash = &hash
			if in.Name != "" {
				existing.Name = in.Name
			}
			if err := repos.Users.Update(ctx, existing, "password_hash", "name"); err != nil {
				return err
			}
			user = existing
		case errors.Is(err, repository.ErrNotFound):
			role, err := repos.Roles.GetByName(ctx, auth.DefaultRoleRegistration)
			if err != nil {
				return fmt.Errorf("load default role %s: %w", auth.DefaultRoleRegistration, err)
			}
			user = &models.User{
				ID:           bunx.NewUUIDv7(),
				Email:        email,
				Name:         strings.TrimSpace(in.Name),
				PasswordHash: &hash,
				RoleID:       &role.ID,
			}
			if err := repos.Users.Create(ctx, user); err != nil {
				return err
			}
		default:
			return err
		}

		code, result.ExpiresAt, err = s.issueCode(ctx, repos.PendingTokens, user.ID, models.PurposeEmailVerification, verifyTTL)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.mail(ctx, user.Email, TemplateVerifyEmail, map[string]any{
		"name":      user.Name,
		"code":      code,
		"expiresAt": result.ExpiresAt,
	})
	s.log.WithField("user_id", user.ID).Info("registration pending email verification")

	result.UserID = user.ID
	result.Email = user.Email
	return &result, nil
}

// VerifyEmail implements Service.
func (s *iamService) VerifyEmail(ctx context.Context, email, code string) (*AuthResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.VerifyEmail",
		attribute.String(telemetry.AttrTokenPurpose, string(models.PurposeEmailVerification)),
	)
	defer span.End()

	var userID string
	err := s.inCodeTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := repos.Users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return InvalidToken("invalid or already used code")
			}
			return err
		}
		pending, err := s.verifyCode(ctx, repos.PendingTokens, user.ID, models.PurposeEmailVerification, code)
		if err != nil {
			return err
		}
		if err := s.consume(ctx, repos.PendingTokens, pending); err != nil {
			return err
		}
		user.EmailVerified = true
		userID = user.ID
		return repos.Users.Update(ctx, user, "email_verified")
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return s.signIn(ctx, userID)
}

// Login implements Service.
func (s *iamService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.Login")
	defer span.End()

	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordLogin(ctx, "failure")
			return nil, invalidCredentials()
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String(telemetry.AttrPrincipalID, user.ID))
	if user.DisabledAt != nil {
		s.metrics.RecordLogin(ctx, "failure")
		return nil, invalidCredentials()
	}

	now := s.clock()
	if remaining := user.LockedUntil(now); remaining > 0 {
		s.metrics.RecordLogin(ctx, "locked")
		return nil, RateLimited(remaining)
	}
	if user.LockoutUntil != nil {
		// The previous lockout has elapsed; count afresh.
		user.LockoutUntil = nil
		user.FailedLoginAttempts = 0
	}

	if !user.HasPassword() || !auth.CheckPassword(*user.PasswordHash, password) {
		return nil, s.recordFailedLogin(ctx, user)
	}

	user.FailedLoginAttempts = 0
	user.LockoutUntil = nil
	if user.EmailVerified {
		user.LastLoginAt = &now
	}
	if err := s.repos.Users.UpdateLoginState(ctx, user); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !user.EmailVerified {
		s.metrics.RecordLogin(ctx, "unverified")
		return nil, EmailNotVerified()
	}

	s.metrics.RecordLogin(ctx, "success")
	return s.signIn(ctx, user.ID)
}

// recordFailedLogin bumps the failure counter and starts a lockout once the
// threshold is reached. It returns the error to hand back to the caller.
func (s *iamService) recordFailedLogin(ctx context.Context, user *models.User) error {
	user.FailedLoginAttempts++
	locked := user.FailedLoginAttempts >= s.cfg.Auth.LockoutThreshold
	if locked {
		until := s.clock().Add(s.cfg.Auth.LockoutDuration)
		user.LockoutUntil = &until
	}
	if err := s.repos.Users.UpdateLoginState(ctx, user); err != nil {
		return err
	}

	if locked {
		s.metrics.RecordLogin(ctx, "locked")
		s.metrics.RecordLockout(ctx)
		s.log.WithFields(logrus.Fields{
			"user_id":         user.ID,
			"failed_attempts": user.FailedLoginAttempts,
			"lockout_until":   user.LockoutUntil,
		}).Warn("account locked after repeated failed logins")
		return RateLimited(s.cfg.Auth.LockoutDuration)
	}
	s.metrics.RecordLogin(ctx, "failure")
	return invalidCredentials()
}

// signIn issues a token pair for a verified user and describes it.
func (s *iamService) signIn(ctx context.Context, userID string) (*AuthResult, error) {
	pair, err := s.tokens.IssueTokenPair(auth.RegisteredIdentity(userID))
	if err != nil {
		return nil, err
	}
	view, err := s.registeredView(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: view, Tokens: pair}, nil
}

// IssueGuestSession implements Service.
func (s *iamService) IssueGuestSession(ctx context.Context) (*GuestSession, error) {
	sessionID := uuid.NewString()
	pair, err := s.tokens.IssueTokenPair(auth.GuestIdentity(sessionID))
	if err != nil {
		return nil, err
	}
	s.metrics.RecordGuestSession(ctx)
	return &GuestSession{SessionID: sessionID, Tokens: pair}, nil
}

// Refresh implements Service.
func (s *iamService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.Refresh")
	defer span.End()

	pair, old, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		e := Unauthenticated("invalid or expired refresh token")
		e.Err = err
		return nil, e
	}
	if old.IsGuest {
		return &pair, nil
	}

	err = s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := repos.Users.GetByID(ctx, old.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return Unauthenticated("account no longer exists")
			}
			return err
		}
		if user.DisabledAt != nil {
			return Unauthenticated("account is disabled")
		}

		// The insert is the single-use check: of two concurrent refreshes
		// with the same token only one lists the JTI.
		claimed, err := repos.RevokedJTIs.Create(ctx, &models.RevokedJTI{
			JTI:     old.JTI,
			Subject: old.UserID,
			Exp:     old.ExpiresAt.UTC(),
		})
		if err != nil {
			return err
		}
		if !claimed {
			s.log.WithField("user_id", old.UserID).Warn("revoked refresh token presented")
			return Unauthenticated("refresh token has been revoked")
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &pair, nil
}

// Logout implements Service.
func (s *iamService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	access, err := s.tokens.Verify(accessToken, auth.TokenKindAccess)
	if err != nil {
		e := Unauthenticated("invalid or expired token")
		e.Err = err
		return e
	}
	if access.IsGuest {
		return nil
	}

	revocations := []*models.RevokedJTI{{JTI: access.JTI, Subject: access.UserID, Exp: access.ExpiresAt.UTC()}}
	if refreshToken != "" {
		refresh, err := s.tokens.Verify(refreshToken, auth.TokenKindRefresh)
		if err == nil && refresh.UserID == access.UserID {
			revocations = append(revocations, &models.RevokedJTI{JTI: refresh.JTI, Subject: refresh.UserID, Exp: refresh.ExpiresAt.UTC()})
		}
	}

	return s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, r := range revocations {
			if _, err := repos.RevokedJTIs.Create(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// CurrentUser implements Service.
func (s *iamService) CurrentUser(ctx context.Context, principal *auth.Principal) (*UserView, error) {
	switch {
	case principal == nil:
		return nil, Unauthenticated("authentication required")
	case principal.IsGuest():
		return &UserView{
			SessionID:   principal.SessionID,
			RoleName:    principal.RoleName,
			IsGuest:     true,
			Permissions: []string{},
		}, nil
	case principal.IsSystem():
		return &UserView{
			ID:            principal.ID,
			RoleName:      principal.RoleName,
			EmailVerified: true,
			Permissions:   []string{},
		}, nil
	}

	user, err := s.repos.Users.GetByID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Unauthenticated("account no longer exists")
		}
		return nil, err
	}
	return &UserView{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		RoleName:      principal.RoleName,
		EmailVerified: user.EmailVerified,
		Permissions:   principal.Permissions(),
	}, nil
}

func (s *iamService) registeredView(ctx context.Context, userID string) (*UserView, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.repos.Users.ResolvePrincipal(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserView{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		RoleName:      resolved.RoleName,
		EmailVerified: user.EmailVerified,
		Permissions:   resolved.Permissions,
	}, nil
}
