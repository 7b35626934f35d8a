package auth

import (
	"sort"
	"strings"
)

// PrincipalKind identifies which of the three principal variants a request
// resolved to.
type PrincipalKind string

const (
	// PrincipalRegistered is a stored user whose permissions come from its role.
	PrincipalRegistered PrincipalKind = "registered"
	// PrincipalGuest is an anonymous session with no stored identity.
	PrincipalGuest PrincipalKind = "guest"
	// PrincipalSystem is the in-process superuser.
	PrincipalSystem PrincipalKind = "system"
)

// Principal is the identity attached to a request after authentication.
//
// It is immutable after construction; the permission set is private and only
// exposed through read methods. Permissions are resolved per request and never
// cached across requests.
type Principal struct {
	Kind PrincipalKind

	// ID is users.id for registered principals and SystemUserID for system.
	ID string

	// SessionID is set for guests only.
	SessionID string

	Email    string
	RoleName string

	permissions map[string]struct{}
	superuser   bool
}

// NewRegisteredPrincipal builds a principal for a stored user.
func NewRegisteredPrincipal(id, email, roleName string, permissions []string) *Principal {
	set := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		set[p] = struct{}{}
	}
	return &Principal{
		Kind:        PrincipalRegistered,
		ID:          id,
		Email:       email,
		RoleName:    roleName,
		permissions: set,
	}
}

// NewGuestPrincipal builds a guest principal. Guests hold no permissions.
func NewGuestPrincipal(sessionID string) *Principal {
	return &Principal{
		Kind:        PrincipalGuest,
		SessionID:   sessionID,
		RoleName:    RoleGuest,
		permissions: map[string]struct{}{},
	}
}

// SystemPrincipal returns the superuser used by the CLI and background jobs.
func SystemPrincipal() *Principal {
	return &Principal{
		Kind:        PrincipalSystem,
		ID:          SystemUserID,
		RoleName:    RoleSystem,
		permissions: map[string]struct{}{},
		superuser:   true,
	}
}

// IsGuest reports whether p is a guest session.
func (p *Principal) IsGuest() bool {
	return p != nil && p.Kind == PrincipalGuest
}

// IsSystem reports whether p is the system principal.
func (p *Principal) IsSystem() bool {
	return p != nil && p.Kind == PrincipalSystem
}

// Subject returns the identifier to log or attribute actions to.
func (p *Principal) Subject() string {
	if p == nil {
		return ""
	}
	if p.Kind == PrincipalGuest {
		return "guest:" + p.SessionID
	}
	return p.ID
}

// HasPermission reports whether p holds slug.
func (p *Principal) HasPermission(slug string) bool {
	if p == nil {
		return false
	}
	if p.superuser {
		return true
	}
	_, ok := p.permissions[slug]
	return ok
}

// HasAllPermissions reports whether p holds every slug. An empty list is
// trivially satisfied.
func (p *Principal) HasAllPermissions(slugs ...string) bool {
	for _, s := range slugs {
		if !p.HasPermission(s) {
			return false
		}
	}
	return p != nil
}

// MissingPermissions returns the slugs p does not hold, in input order.
func (p *Principal) MissingPermissions(slugs ...string) []string {
	var missing []string
	for _, s := range slugs {
		if !p.HasPermission(s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// HasAnyRole reports whether p's role is one of names, compared ignoring case.
// The system principal passes every role check.
func (p *Principal) HasAnyRole(names ...string) bool {
	if p == nil {
		return false
	}
	if p.superuser {
		return true
	}
	for _, n := range names {
		if strings.EqualFold(p.RoleName, n) {
			return true
		}
	}
	return false
}

// Permissions returns the sorted permission slugs. The system principal
// reports none because it bypasses the catalog.
func (p *Principal) Permissions() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.permissions))
	for s := range p.permissions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
