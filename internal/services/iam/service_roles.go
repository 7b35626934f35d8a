package iam

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/db/models"
	"github.com/salonbook/salonapi/internal/repository"
	"github.com/salonbook/salonapi/internal/telemetry"
)

const maxRoleNameLength = 64

// =========================================================================
// Read-Only Lookups
// =========================================================================

// ListPermissions implements Service.
func (s *iamService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return s.repos.Permissions.List(ctx)
}

// ListRoles implements Service.
func (s *iamService) ListRoles(ctx context.Context) ([]models.RoleWithPermissions, error) {
	return s.repos.Roles.List(ctx)
}

// GetRole implements Service.
func (s *iamService) GetRole(ctx context.Context, roleID string) (*models.RoleWithPermissions, error) {
	role, err := s.repos.Roles.GetWithPermissions(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NotFound("role not found")
		}
		return nil, err
	}
	return role, nil
}

// =========================================================================
// Mutations (Transactional, Published)
// =========================================================================

// CreateRole implements Service.
func (s *iamService) CreateRole(ctx context.Context, in CreateRoleInput) (*models.RoleWithPermissions, error) {
	name := strings.TrimSpace(in.Name)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.CreateRole",
		attribute.String(telemetry.AttrRoleName, name),
	)
	defer span.End()

	if name == "" {
		return nil, Validation("invalid role", map[string]string{"name": "is required"})
	}
	if len(name) > maxRoleNameLength {
		return nil, Validation("invalid role", map[string]string{"name": fmt.Sprintf("must be at most %d characters", maxRoleNameLength)})
	}
	slugs := normalizeSlugs(in.Permissions)

	var created *models.RoleWithPermissions
	err := s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		permissionIDs, err := resolveSlugs(ctx, repos.Permissions, slugs)
		if err != nil {
			return err
		}

		existing, err := repos.Roles.GetByName(ctx, name)
		if err == nil {
			return Conflict(fmt.Sprintf("role %q already exists", existing.Name))
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		role := &models.Role{
			ID:          bunx.NewUUIDv7(),
			Name:        name,
			Description: strings.TrimSpace(in.Description),
		}
		if err := repos.Roles.Create(ctx, role); err != nil {
			return err
		}
		if err := repos.Roles.ReplacePermissions(ctx, role.ID, permissionIDs); err != nil {
			return err
		}
		created, err = repos.Roles.GetWithPermissions(ctx, role.ID)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"role_id":     created.ID,
		"role":        created.Name,
		"permissions": created.Permissions,
		"actor":       actor(ctx),
	}).Info("role created")
	s.publish(ctx, EventRoleCreated, roleEvent(ctx, created))
	return created, nil
}

// SetRolePermissions implements Service.
func (s *iamService) SetRolePermissions(ctx context.Context, roleID string, slugs []string) (*models.RoleWithPermissions, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.SetRolePermissions",
		attribute.String(telemetry.AttrRoleID, roleID),
	)
	defer span.End()

	slugs = normalizeSlugs(slugs)

	var updated *models.RoleWithPermissions
	err := s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		permissionIDs, err := resolveSlugs(ctx, repos.Permissions, slugs)
		if err != nil {
			return err
		}
		if _, err := repos.Roles.GetByID(ctx, roleID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NotFound("role not found")
			}
			return err
		}
		if err := repos.Roles.ReplacePermissions(ctx, roleID, permissionIDs); err != nil {
			return err
		}
		if err := repos.Roles.BumpVersion(ctx, roleID); err != nil {
			return err
		}
		updated, err = repos.Roles.GetWithPermissions(ctx, roleID)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"role_id":     updated.ID,
		"role":        updated.Name,
		"version":     updated.Version,
		"permissions": updated.Permissions,
		"actor":       actor(ctx),
	}).Info("role permissions replaced")
	s.publish(ctx, EventRolePermissionsUpdated, roleEvent(ctx, updated))
	return updated, nil
}

// DeleteRole implements Service.
func (s *iamService) DeleteRole(ctx context.Context, roleID string) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.DeleteRole",
		attribute.String(telemetry.AttrRoleID, roleID),
	)
	defer span.End()

	var deleted *models.Role
	err := s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		role, err := repos.Roles.GetByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NotFound("role not found")
			}
			return err
		}
		if role.IsSystemRole {
			return Forbidden(fmt.Sprintf("system role %q cannot be deleted", role.Name))
		}
		assigned, err := repos.Users.CountByRole(ctx, role.ID)
		if err != nil {
			return err
		}
		if assigned > 0 {
			return Conflict(fmt.Sprintf("role %q is assigned to %d user(s)", role.Name, assigned))
		}
		deleted = role
		return repos.Roles.Delete(ctx, role.ID)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.log.WithFields(logrus.Fields{"role_id": deleted.ID, "role": deleted.Name, "actor": actor(ctx)}).Info("role deleted")
	s.publish(ctx, EventRoleDeleted, map[string]any{"id": deleted.ID, "name": deleted.Name, "actor": actor(ctx)})
	return nil
}

// AssignUserRole implements Service.
func (s *iamService) AssignUserRole(ctx context.Context, email, roleName string) (*RoleAssignment, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.AssignUserRole",
		attribute.String(telemetry.AttrRoleName, roleName),
	)
	defer span.End()

	email = repository.NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, Validation("invalid role assignment", map[string]string{"email": "must be a valid email address"})
	}
	if strings.TrimSpace(roleName) == "" {
		return nil, Validation("invalid role assignment", map[string]string{"role": "is required"})
	}

	var (
		result RoleAssignment
		setup  string
	)
	err := s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		role, err := repos.Roles.GetByName(ctx, strings.TrimSpace(roleName))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NotFound(fmt.Sprintf("role %q not found", roleName))
			}
			return err
		}
		if strings.EqualFold(role.Name, auth.RoleGuest) {
			return Validation("invalid role assignment", map[string]string{"role": "the Guest role cannot be assigned to accounts"})
		}

		user, err := repos.Users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			user.RoleID = &role.ID
			if err := repos.Users.Update(ctx, user, "role_id"); err != nil {
				return err
			}
		case errors.Is(err, repository.ErrNotFound):
			user = &models.User{ID: bunx.NewUUIDv7(), Email: email, RoleID: &role.ID}
			if err := repos.Users.Create(ctx, user); err != nil {
				return err
			}
			result.Created = true
		default:
			return err
		}

		if !user.HasPassword() {
			setup, _, err = s.issueLinkToken(ctx, repos.PendingTokens, user.ID, models.PurposeSetup, s.cfg.Auth.SetupTokenTTL)
			if err != nil {
				return err
			}
			result.SetupPending = true
		}

		result.UserID = user.ID
		result.Email = user.Email
		result.RoleID = role.ID
		result.RoleName = role.Name
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if result.SetupPending {
		s.mail(ctx, result.Email, TemplateSetupPassword, map[string]any{
			"role": result.RoleName,
			"link": s.link(setupPasswordPath, setup),
		})
	}
	s.log.WithFields(logrus.Fields{
		"user_id": result.UserID,
		"role":    result.RoleName,
		"created": result.Created,
		"actor":   actor(ctx),
	}).Info("role assigned")
	s.publish(ctx, EventUserRoleAssigned, map[string]any{
		"userId": result.UserID,
		"roleId": result.RoleID,
		"role":   result.RoleName,
		"actor":  actor(ctx),
	})
	return &result, nil
}

// BootstrapAdmin implements Service. The caller must run as the system
// principal; the CLI arranges that.
func (s *iamService) BootstrapAdmin(ctx context.Context, in BootstrapInput) (*models.User, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.BootstrapAdmin")
	defer span.End()

	if p, ok := auth.PrincipalFromContext(ctx); !ok || !p.IsSystem() {
		return nil, Forbidden("bootstrap requires the system principal")
	}
	email := repository.NormalizeEmail(in.Email)
	if !ValidEmail(email) {
		return nil, Validation("invalid bootstrap input", map[string]string{"email": "must be a valid email address"})
	}
	hash, err := hashNewPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var admin *models.User
	err = s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		role, err := repos.Roles.GetByName(ctx, auth.RoleAdmin)
		if err != nil {
			return fmt.Errorf("load %s role (are migrations applied?): %w", auth.RoleAdmin, err)
		}
		count, err := repos.Users.CountByRole(ctx, role.ID)
		if err != nil {
			return err
		}
		if count > 0 && !in.Force {
			return Conflict("an Admin already exists; use --force to add another")
		}

		user, err := repos.Users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			user.RoleID = &role.ID
			user.PasswordHash = &hash
			user.EmailVerified = true
			user.FailedLoginAttempts = 0
			user.LockoutUntil = nil
			user.DisabledAt = nil
			if in.Name != "" {
				user.Name = in.Name
			}
			if err := repos.Users.Update(ctx, user, "role_id", "password_hash", "email_verified",
				"failed_login_attempts", "lockout_until", "disabled_at", "name"); err != nil {
				return err
			}
		case errors.Is(err, repository.ErrNotFound):
			user = &models.User{
				ID:            bunx.NewUUIDv7(),
				Email:         email,
				Name:          in.Name,
				PasswordHash:  &hash,
				RoleID:        &role.ID,
				EmailVerified: true,
			}
			if err := repos.Users.Create(ctx, user); err != nil {
				return err
			}
		default:
			return err
		}
		admin = user
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": admin.ID, "email": admin.Email, "force": in.Force}).Warn("admin account bootstrapped")
	return admin, nil
}

// =========================================================================
// Helpers
// =========================================================================

// normalizeSlugs trims, drops empties and de-duplicates, preserving order.
func normalizeSlugs(slugs []string) []string {
	seen := make(map[string]struct{}, len(slugs))
	out := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		slug = strings.TrimSpace(slug)
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	return out
}

// resolveSlugs maps slugs to permission ids, failing with UnknownPermissions
// when any slug is absent from the catalog.
func resolveSlugs(ctx context.Context, permissions repository.PermissionRepository, slugs []string) ([]string, error) {
	found, err := permissions.GetBySlugs(ctx, slugs)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]string, len(found))
	for _, p := range found {
		bySlug[p.Slug] = p.ID
	}

	ids := make([]string, 0, len(slugs))
	var unknown []string
	for _, slug := range slugs {
		id, ok := bySlug[slug]
		if !ok {
			unknown = append(unknown, slug)
			continue
		}
		ids = append(ids, id)
	}
	if len(unknown) > 0 {
		return nil, UnknownPermissions(unknown)
	}
	return ids, nil
}

func roleEvent(ctx context.Context, role *models.RoleWithPermissions) map[string]any {
	perms := append([]string(nil), role.Permissions...)
	sort.Strings(perms)
	return map[string]any{
		"id":          role.ID,
		"name":        role.Name,
		"version":     role.Version,
		"permissions": perms,
		"actor":       actor(ctx),
	}
}
