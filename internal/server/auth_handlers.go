package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/services/iam"
)

// handleRegister handles POST /auth/register
func (h *handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	res, err := h.iam.Register(r.Context(), iam.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.rs.JSON(w, http.StatusCreated, registerResponse{
		UserID:                res.UserID,
		Email:                 res.Email,
		VerificationExpiresAt: res.ExpiresAt,
	})
}

// handleVerifyEmail handles POST /auth/verify-email
func (h *handlers) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	res, err := h.iam.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, toAuthResponse(res))
}

// handleLogin handles POST /auth/login
func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	res, err := h.iam.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, toAuthResponse(res))
}

// handleGuest handles POST /auth/guest
func (h *handlers) handleGuest(w http.ResponseWriter, r *http.Request) {
	session, err := h.iam.IssueGuestSession(r.Context())
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusCreated, guestResponse{SessionID: session.SessionID, TokenPair: session.Tokens})
}

// handleRefresh handles POST /auth/refresh-token
func (h *handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	pair, err := h.iam.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, pair)
}

// handleLogout handles POST /auth/logout. The body is optional; when it
// carries the refresh token that token is revoked too.
func (h *handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, h.validate, &req); err != nil {
			h.rs.Error(w, r, err)
			return
		}
	}

	accessToken, _ := auth.BearerToken(r.Header)
	if err := h.iam.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.Message(w, http.StatusOK, "logged out")
}

// handleMe handles GET /auth/me. Anonymous callers get authenticated=false
// rather than an error.
func (h *handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.rs.JSON(w, http.StatusOK, meResponse{Authenticated: false})
		return
	}

	view, err := h.iam.CurrentUser(r.Context(), principal)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	user := toUserResponse(view)
	h.rs.JSON(w, http.StatusOK, meResponse{Authenticated: true, User: &user})
}

// handleVerifySetupToken handles GET /auth/setup-password/{token}
func (h *handlers) handleVerifySetupToken(w http.ResponseWriter, r *http.Request) {
	info, err := h.iam.VerifySetupToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, setupTokenResponse{Email: info.Email, ExpiresAt: info.ExpiresAt})
}

// handleSetPassword handles POST /auth/set-password
func (h *handlers) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	if err := h.iam.SetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.Message(w, http.StatusOK, "password set, you can now log in")
}

// handleForgotPassword handles POST /auth/forgot-password. It answers the
// same way whether or not the email is registered.
func (h *handlers) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	if err := h.iam.ForgotPassword(r.Context(), req.Email); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.Message(w, http.StatusOK, "if the account exists, a reset link has been sent")
}

// handleResetPassword handles POST /auth/reset-password
func (h *handlers) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	if err := h.iam.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.Message(w, http.StatusOK, "password has been reset")
}

// handleChangePassword handles POST /auth/change-password
func (h *handlers) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.iam.ChangePassword(r.Context(), principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.Message(w, http.StatusOK, "password changed")
}

// handleSendChangePasswordOTP handles POST /auth/send-change-password-otp
func (h *handlers) handleSendChangePasswordOTP(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.iam.SendChangePasswordOTP(r.Context(), principal.ID); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.Message(w, http.StatusOK, "a confirmation code has been sent to your email")
}

// handleChangePasswordOTP handles POST /auth/change-password-otp
func (h *handlers) handleChangePasswordOTP(w http.ResponseWriter, r *http.Request) {
	var req changePasswordOTPRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.iam.ChangePasswordWithOTP(r.Context(), principal.ID, req.Code, req.NewPassword); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.Message(w, http.StatusOK, "password changed")
}
