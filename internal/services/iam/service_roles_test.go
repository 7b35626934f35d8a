package iam

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/models"
)

func findRole(t *testing.T, roles []models.RoleWithPermissions, name string) *models.RoleWithPermissions {
	t.Helper()
	for i := range roles {
		if roles[i].Name == name {
			return &roles[i]
		}
	}
	return nil
}

func TestListPermissionsAndRoles_Seeded(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	perms, err := env.svc.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(auth.DefaultPermissions))

	roles, err := env.svc.ListRoles(ctx)
	require.NoError(t, err)
	admin := findRole(t, roles, auth.RoleAdmin)
	require.NotNil(t, admin)
	assert.ElementsMatch(t, auth.AllDefaultPermissionSlugs(), admin.Permissions)

	guest := findRole(t, roles, auth.RoleGuest)
	require.NotNil(t, guest)
	assert.Empty(t, guest.Permissions)
}

func TestCreateRole_UnknownSlugPersistsNothing(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := systemContext()

	_, err := env.svc.CreateRole(ctx, CreateRoleInput{
		Name:        "Manager",
		Permissions: []string{auth.ServicesManage, "unknown.slug"},
	})
	e := requireKind(t, err, KindValidation)
	assert.Equal(t, []string{"unknown.slug"}, e.Fields["unknown_permissions"])
	assert.Contains(t, e.Message, "unknown.slug")

	roles, err := env.svc.ListRoles(ctx)
	require.NoError(t, err)
	assert.Nil(t, findRole(t, roles, "Manager"))
	assert.Empty(t, env.publisher.Events())
}

func TestCreateRole(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := systemContext()

	role, err := env.svc.CreateRole(ctx, CreateRoleInput{
		Name:        "  Manager ",
		Description: "Front desk",
		Permissions: []string{auth.ServicesManage, auth.OffersManage, auth.ServicesManage},
	})
	require.NoError(t, err)
	assert.Equal(t, "Manager", role.Name)
	assert.False(t, role.IsSystemRole)
	assert.Equal(t, []string{auth.OffersManage, auth.ServicesManage}, role.Permissions)
	assert.Equal(t, []string{EventRoleCreated}, env.publisher.Events())

	tests := []struct {
		name string
		in   CreateRoleInput
		kind ErrorKind
	}{
		{name: "same name", in: CreateRoleInput{Name: "Manager"}, kind: KindConflict},
		{name: "different case", in: CreateRoleInput{Name: "MANAGER"}, kind: KindConflict},
		{name: "seeded role", in: CreateRoleInput{Name: "admin"}, kind: KindConflict},
		{name: "blank name", in: CreateRoleInput{Name: "   "}, kind: KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateRole(ctx, tt.in)
			requireKind(t, err, tt.kind)
		})
	}
}

func TestSetRolePermissions_RoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := systemContext()

	role, err := env.svc.CreateRole(ctx, CreateRoleInput{Name: "Manager", Permissions: []string{auth.DashboardView}})
	require.NoError(t, err)

	sets := [][]string{
		{auth.ServicesManage, auth.CoursesManage},
		auth.AllDefaultPermissionSlugs(),
		{},
		{auth.SupportManage},
	}
	for _, set := range sets {
		_, err := env.svc.SetRolePermissions(ctx, role.ID, set)
		require.NoError(t, err)

		roles, err := env.svc.ListRoles(ctx)
		require.NoError(t, err)
		listed := findRole(t, roles, "Manager")
		require.NotNil(t, listed)
		assert.ElementsMatch(t, set, listed.Permissions)
	}
}

func TestSetRolePermissions_IdempotentAndVersioned(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := systemContext()

	role, err := env.svc.CreateRole(ctx, CreateRoleInput{Name: "Manager"})
	require.NoError(t, err)
	set := []string{auth.ServicesManage, auth.OffersManage}

	first, err := env.svc.SetRolePermissions(ctx, role.ID, set)
	require.NoError(t, err)
	second, err := env.svc.SetRolePermissions(ctx, role.ID, set)
	require.NoError(t, err)

	assert.Equal(t, first.Permissions, second.Permissions)
	assert.Equal(t, role.Version+1, first.Version)
	assert.Equal(t, role.Version+2, second.Version)
	assert.Equal(t, []string{EventRoleCreated, EventRolePermissionsUpdated, EventRolePermissionsUpdated}, env.publisher.Events())
}

func TestSetRolePermissions_Failures(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := systemContext()

	role, err := env.svc.CreateRole(ctx, CreateRoleInput{Name: "Manager", Permissions: []string{auth.DashboardView}})
	require.NoError(t, err)

	_, err = env.svc.SetRolePermissions(ctx, role.ID, []string{auth.ServicesManage, "nope.nope"})
	requireKind(t, err, KindValidation)

	got, err := env.svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.DashboardView}, got.Permissions, "a rejected replace leaves the original set")

	_, err = env.svc.SetRolePermissions(ctx, "0190c9a2-0000-7000-8000-000000000000", []string{auth.DashboardView})
	requireKind(t, err, KindNotFound)

	_, err = env.svc.GetRole(ctx, "0190c9a2-0000-7000-8000-000000000000")
	requireKind(t, err, KindNotFound)
}

func TestDeleteRole(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := systemContext()

	roles, err := env.svc.ListRoles(ctx)
	require.NoError(t, err)
	admin := findRole(t, roles, auth.RoleAdmin)

	err = env.svc.DeleteRole(ctx, admin.ID)
	requireKind(t, err, KindForbidden)

	custom, err := env.svc.CreateRole(ctx, CreateRoleInput{Name: "Manager"})
	require.NoError(t, err)
	_, err = env.svc.AssignUserRole(ctx, "desk@salon.test", "manager")
	require.NoError(t, err)

	err = env.svc.DeleteRole(ctx, custom.ID)
	requireKind(t, err, KindConflict)

	_, err = env.svc.AssignUserRole(ctx, "desk@salon.test", auth.RoleCustomer)
	require.NoError(t, err)
	require.NoError(t, env.svc.DeleteRole(ctx, custom.ID))

	err = env.svc.DeleteRole(ctx, custom.ID)
	requireKind(t, err, KindNotFound)
	assert.Contains(t, env.publisher.Events(), EventRoleDeleted)
}

func TestAssignUserRole(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := systemContext()

	existing := env.createUser(t, "client@salon.test", auth.RoleCustomer, "has-password")

	assignment, err := env.svc.AssignUserRole(ctx, "CLIENT@salon.test", "expert")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, assignment.UserID)
	assert.Equal(t, auth.RoleExpert, assignment.RoleName)
	assert.False(t, assignment.Created)
	assert.False(t, assignment.SetupPending, "accounts with a password get no setup link")

	_, err = env.svc.AssignUserRole(ctx, "client@salon.test", "Nonexistent")
	requireKind(t, err, KindNotFound)

	_, err = env.svc.AssignUserRole(ctx, "client@salon.test", auth.RoleGuest)
	requireKind(t, err, KindValidation)

	assert.Contains(t, env.publisher.Events(), EventUserRoleAssigned)
}

func TestBootstrapAdmin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.svc.BootstrapAdmin(context.Background(), BootstrapInput{Email: "owner@salon.test", Password: "owner-password"})
	requireKind(t, err, KindForbidden)

	ctx := systemContext()
	admin, err := env.svc.BootstrapAdmin(ctx, BootstrapInput{Email: "owner@salon.test", Password: "owner-password"})
	require.NoError(t, err)
	assert.True(t, admin.EmailVerified)

	_, err = env.svc.BootstrapAdmin(ctx, BootstrapInput{Email: "second@salon.test", Password: "second-password"})
	requireKind(t, err, KindConflict)

	_, err = env.svc.BootstrapAdmin(ctx, BootstrapInput{Email: "second@salon.test", Password: "second-password", Force: true})
	require.NoError(t, err)

	login, err := env.svc.Login(context.Background(), "owner@salon.test", "owner-password")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, login.User.RoleName)
	assert.Contains(t, login.User.Permissions, auth.RolesManage)
}

func TestPurgeExpired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "client@salon.test", auth.RoleCustomer, "old-password")

	require.NoError(t, env.svc.ForgotPassword(ctx, user.Email))
	require.NoError(t, env.svc.SendChangePasswordOTP(ctx, user.ID))

	res, err := env.svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.PendingTokens)

	env.clock.Advance(2 * testAuthConfig().ResetTokenTTL)
	res, err = env.svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.PendingTokens)
}
