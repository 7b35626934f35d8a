package server

import (
	"time"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/models"
	"github.com/salonbook/salonapi/internal/services/iam"
)

// Requests

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type setPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type changePasswordOTPRequest struct {
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=64"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

// Permissions must be present; an empty list clears the role.
type setRolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,dive,required"`
}

type assignRoleRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

// Responses

type userResponse struct {
	ID            string   `json:"id,omitempty"`
	SessionID     string   `json:"sessionId,omitempty"`
	Email         string   `json:"email,omitempty"`
	Name          string   `json:"name,omitempty"`
	Role          string   `json:"role"`
	EmailVerified bool     `json:"emailVerified"`
	IsGuest       bool     `json:"isGuest"`
	Permissions   []string `json:"permissions"`
}

type authResponse struct {
	User   userResponse   `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

type meResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *userResponse `json:"user,omitempty"`
}

type guestResponse struct {
	SessionID string `json:"sessionId"`
	auth.TokenPair
}

type registerResponse struct {
	UserID                string    `json:"userId"`
	Email                 string    `json:"email"`
	VerificationExpiresAt time.Time `json:"verificationExpiresAt"`
}

type setupTokenResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type permissionResponse struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type roleResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	IsSystemRole bool      `json:"isSystemRole"`
	Version      int       `json:"version"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type roleAssignmentResponse struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	RoleID       string `json:"roleId"`
	Role         string `json:"role"`
	Created      bool   `json:"created"`
	SetupPending bool   `json:"setupPending"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toUserResponse(v *iam.UserView) userResponse {
	return userResponse{
		ID:            v.ID,
		SessionID:     v.SessionID,
		Email:         v.Email,
		Name:          v.Name,
		Role:          v.RoleName,
		EmailVerified: v.EmailVerified,
		IsGuest:       v.IsGuest,
		Permissions:   nonNil(v.Permissions),
	}
}

func toAuthResponse(res *iam.AuthResult) authResponse {
	return authResponse{User: toUserResponse(res.User), Tokens: res.Tokens}
}

func toRoleResponse(r *models.RoleWithPermissions) roleResponse {
	return roleResponse{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		IsSystemRole: r.IsSystemRole,
		Version:      r.Version,
		Permissions:  nonNil(r.Permissions),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toRoleResponses(roles []models.RoleWithPermissions) []roleResponse {
	out := make([]roleResponse, 0, len(roles))
	for i := range roles {
		out = append(out, toRoleResponse(&roles[i]))
	}
	return out
}

func toPermissionResponses(perms []models.Permission) []permissionResponse {
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{ID: p.ID, Slug: p.Slug, Description: p.Description})
	}
	return out
}
