package iam

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/dbtest"
)

func TestSetupToken_ConsumedTokenStaysInvalid(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := systemContext()

	assignment, err := env.svc.AssignUserRole(ctx, "stylist@salon.test", auth.RoleExpert)
	require.NoError(t, err)
	require.True(t, assignment.Created)
	require.True(t, assignment.SetupPending)

	token := env.mailer.Last(t, "stylist@salon.test", TemplateSetupPassword).LinkToken()
	require.Len(t, token, 64)

	info, err := env.svc.VerifySetupToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "stylist@salon.test", info.Email)

	// Verification is a pure read.
	_, err = env.svc.VerifySetupToken(ctx, token)
	require.NoError(t, err)

	require.NoError(t, env.svc.SetPassword(ctx, token, "new-password-1"))

	for i := 0; i < 2; i++ {
		_, err = env.svc.VerifySetupToken(ctx, token)
		requireKind(t, err, KindInvalidToken)
		err = env.svc.SetPassword(ctx, token, "new-password-2")
		requireKind(t, err, KindInvalidToken)
	}

	result, err := env.svc.Login(ctx, "stylist@salon.test", "new-password-1")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleExpert, result.User.RoleName)
}

func TestSetupToken_ExpiredIsDistinguishable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := systemContext()

	_, err := env.svc.AssignUserRole(ctx, "late@salon.test", auth.RoleExpert)
	require.NoError(t, err)
	token := env.mailer.Last(t, "late@salon.test", TemplateSetupPassword).LinkToken()

	env.clock.Advance(testAuthConfig().SetupTokenTTL + time.Second)

	_, err = env.svc.VerifySetupToken(ctx, token)
	requireKind(t, err, KindTokenExpired)
	err = env.svc.SetPassword(ctx, token, "new-password-1")
	requireKind(t, err, KindTokenExpired)

	_, err = env.svc.VerifySetupToken(ctx, "deadbeef")
	requireKind(t, err, KindInvalidToken)
}

func TestSetupToken_WrongPurposeIsInvalid(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "client@salon.test", auth.RoleCustomer, "old-password")

	require.NoError(t, env.svc.ForgotPassword(ctx, "client@salon.test"))
	resetToken := env.mailer.Last(t, "client@salon.test", TemplateResetPassword).LinkToken()

	_, err := env.svc.VerifySetupToken(ctx, resetToken)
	requireKind(t, err, KindInvalidToken)
}

func TestForgotAndResetPassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "client@salon.test", auth.RoleCustomer, "old-password")

	require.NoError(t, env.svc.ForgotPassword(ctx, "nobody@salon.test"), "unknown emails are not reported")
	require.NoError(t, env.svc.ForgotPassword(ctx, "CLIENT@salon.test"))
	token := env.mailer.Last(t, "client@salon.test", TemplateResetPassword).LinkToken()

	err := env.svc.ResetPassword(ctx, token, "short")
	requireKind(t, err, KindValidation)

	require.NoError(t, env.svc.ResetPassword(ctx, token, "new-password"))
	err = env.svc.ResetPassword(ctx, token, "newer-password")
	requireKind(t, err, KindInvalidToken)

	_, err = env.svc.Login(ctx, "client@salon.test", "old-password")
	requireKind(t, err, KindUnauthenticated)
	_, err = env.svc.Login(ctx, "client@salon.test", "new-password")
	require.NoError(t, err)
}

func TestOTPDoesNotInvalidateResetLink(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "client@salon.test", auth.RoleCustomer, "old-password")

	require.NoError(t, env.svc.ForgotPassword(ctx, user.Email))
	resetToken := env.mailer.Last(t, user.Email, TemplateResetPassword).LinkToken()

	require.NoError(t, env.svc.SendChangePasswordOTP(ctx, user.ID))
	code := env.mailer.Last(t, user.Email, TemplateChangePasswordOTP).Code()
	require.Len(t, code, 6)

	require.NoError(t, env.svc.ResetPassword(ctx, resetToken, "from-reset-link"))
	require.NoError(t, env.svc.ChangePasswordWithOTP(ctx, user.ID, code, "from-otp-code"))

	err := env.svc.ChangePasswordWithOTP(ctx, user.ID, code, "again-otp-code")
	requireKind(t, err, KindInvalidToken)

	_, err = env.svc.Login(ctx, user.Email, "from-otp-code")
	require.NoError(t, err)
}

func TestChangePasswordWithOTP_Expired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "client@salon.test", auth.RoleCustomer, "old-password")

	require.NoError(t, env.svc.SendChangePasswordOTP(ctx, user.ID))
	code := env.mailer.Last(t, user.Email, TemplateChangePasswordOTP).Code()

	env.clock.Advance(testAuthConfig().OTPTTL + time.Second)
	err := env.svc.ChangePasswordWithOTP(ctx, user.ID, code, "new-password")
	requireKind(t, err, KindTokenExpired)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "client@salon.test", auth.RoleCustomer, "old-password")

	err := env.svc.ChangePassword(ctx, user.ID, "not-the-password", "new-password")
	requireKind(t, err, KindValidation)

	err = env.svc.ChangePassword(ctx, "", "old-password", "new-password")
	e := requireKind(t, err, KindForbidden)
	assert.Equal(t, CodeGuestRestricted, e.Code)

	require.NoError(t, env.svc.ChangePassword(ctx, user.ID, "old-password", "new-password"))
	_, err = env.svc.Login(ctx, user.Email, "new-password")
	require.NoError(t, err)
}

func TestChangePasswordWithOTP_CodeBurnedAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	env := newTestEnvWithDB(t, dbtest.NewSQLite(t), func(c *Config) { c.Auth.MaxCodeAttempts = 2 })
	ctx := context.Background()
	user := env.createUser(t, "otp@salon.test", auth.RoleCustomer, "old-password")

	require.NoError(t, env.svc.SendChangePasswordOTP(ctx, user.ID))
	code := env.mailer.Last(t, user.Email, TemplateChangePasswordOTP).Code()

	for i := 0; i < 2; i++ {
		err := env.svc.ChangePasswordWithOTP(ctx, user.ID, wrongCode(code), "new-password")
		requireKind(t, err, KindInvalidToken)
	}
	err := env.svc.ChangePasswordWithOTP(ctx, user.ID, code, "new-password")
	requireKind(t, err, KindInvalidToken)

	_, err = env.svc.Login(ctx, user.Email, "old-password")
	require.NoError(t, err)
}
