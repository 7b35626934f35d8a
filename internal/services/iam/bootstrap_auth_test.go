package iam

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/config"
	"github.com/salonbook/salonapi/internal/db/dbtest"
)

func TestNewBootstrapTokenAuthenticator_RequiresPrefix(t *testing.T) {
	t.Parallel()

	_, err := NewBootstrapTokenAuthenticator("plain-token", nil)
	require.Error(t, err)

	_, err = NewBootstrapTokenAuthenticator(BootstrapTokenPrefix, nil)
	require.Error(t, err)

	a, err := NewBootstrapTokenAuthenticator("sys_operator", nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestBootstrapTokenAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	logger, hook := logtest.NewNullLogger()
	a, err := NewBootstrapTokenAuthenticator("sys_operator", logger)
	require.NoError(t, err)
	env := &testEnv{}
	ctx := context.Background()

	principal, err := a.Authenticate(ctx, env.bearer("sys_operator"))
	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.True(t, principal.IsSystem())
	assert.True(t, principal.HasAllPermissions(auth.RolesManage, auth.UsersManage))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	principal, err = a.Authenticate(ctx, env.bearer("sys_wrong"))
	assert.Nil(t, principal)
	requireKind(t, err, KindUnauthenticated)

	principal, err = a.Authenticate(ctx, env.bearer("eyJhbGciOi.not.bootstrap"))
	assert.NoError(t, err)
	assert.Nil(t, principal, "non-prefixed tokens are left to the next authenticator")
}

func TestNewIAMService_BootstrapTokenChain(t *testing.T) {
	t.Parallel()

	env := newTestEnvWithDB(t, dbtest.NewSQLite(t), func(c *Config) {
		c.Auth.BootstrapToken = "sys_operator"
	})
	require.Len(t, env.svc.authenticators, 2)

	principal, err := env.svc.AuthenticateRequest(context.Background(), env.bearer("sys_operator"))
	require.NoError(t, err)
	assert.True(t, principal.IsSystem())

	warned := false
	for _, entry := range env.logs.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned, "enabling and using the bootstrap token must be logged")
}

func TestNewIAMService_RefusesBootstrapTokenInProduction(t *testing.T) {
	t.Parallel()

	db := dbtest.NewSQLite(t)
	env := newTestEnvWithDB(t, db, nil)

	cfg := Config{Auth: testAuthConfig(), Environment: config.EnvProduction}
	cfg.Auth.BootstrapToken = "sys_operator"
	_, err := NewIAMService(Dependencies{
		Transactor:   env.svc.tx,
		Repositories: env.repos,
		Tokens:       env.tokens,
	}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "production")
}
