package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrincipal_HasAllPermissions(t *testing.T) {
	t.Parallel()

	onlyA := NewRegisteredPrincipal("u1", "a@example.com", "Custom", []string{"a"})
	both := NewRegisteredPrincipal("u2", "b@example.com", "Custom", []string{"a", "b"})

	assert.False(t, onlyA.HasAllPermissions("a", "b"), "AND semantics: holding one of two is not enough")
	assert.True(t, both.HasAllPermissions("a", "b"))
	assert.True(t, onlyA.HasAllPermissions("a"))
	assert.Equal(t, []string{"b"}, onlyA.MissingPermissions("a", "b"))

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.HasAllPermissions())
}

func TestPrincipal_HasAnyRole(t *testing.T) {
	t.Parallel()

	expert := NewRegisteredPrincipal("u1", "e@example.com", RoleExpert, nil)
	assert.True(t, expert.HasAnyRole(RoleAdmin, RoleExpert), "OR semantics")
	assert.True(t, expert.HasAnyRole("expert"))
	assert.False(t, expert.HasAnyRole(RoleAdmin))
	assert.False(t, expert.HasAnyRole())
}

func TestPrincipal_Variants(t *testing.T) {
	t.Parallel()

	guest := NewGuestPrincipal("sess")
	assert.True(t, guest.IsGuest())
	assert.False(t, guest.IsSystem())
	assert.Equal(t, RoleGuest, guest.RoleName)
	assert.Empty(t, guest.Permissions())
	assert.False(t, guest.HasPermission(RolesView))
	assert.Equal(t, "guest:sess", guest.Subject())

	sys := SystemPrincipal()
	assert.True(t, sys.IsSystem())
	assert.False(t, sys.IsGuest())
	assert.True(t, sys.HasAllPermissions(RolesManage, "anything.at_all"))
	assert.True(t, sys.HasAnyRole(RoleAdmin))
	assert.Equal(t, SystemUserID, sys.Subject())

	reg := NewRegisteredPrincipal("u1", "x@example.com", RoleCustomer, []string{"b", "a", "a"})
	assert.Equal(t, []string{"a", "b"}, reg.Permissions())
}
