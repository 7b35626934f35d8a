package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/services/iam"
)

// Gate names recorded on authorization denials.
const (
	gatePermission = "permission"
	gateRole       = "role"
	gateGuest      = "guest"
)

// RequirePermission admits principals holding every listed slug. It must run
// after Authenticate.
func (a *Auth) RequirePermission(slugs ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				a.rs.Error(w, r, iam.Unauthenticated("authentication required"))
				return
			}

			if missing := principal.MissingPermissions(slugs...); len(missing) > 0 {
				a.deny(r, principal, gatePermission, missing)
				a.rs.Error(w, r, iam.MissingPermissions(missing))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits principals whose role is any of names, compared
// ignoring case. It must run after Authenticate.
func (a *Auth) RequireRole(names ...string) func(http.Handler) http.Handler {
	message := fmt.Sprintf("requires one of roles: %s", strings.Join(names, ", "))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				a.rs.Error(w, r, iam.Unauthenticated("authentication required"))
				return
			}

			if !principal.HasAnyRole(names...) {
				a.deny(r, principal, gateRole, names)
				a.rs.Error(w, r, iam.Forbidden(message))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BlockGuests rejects guest sessions with GUEST_RESTRICTED. Registered and
// system principals pass. It must run after Authenticate.
func (a *Auth) BlockGuests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			a.rs.Error(w, r, iam.Unauthenticated("authentication required"))
			return
		}

		if principal.IsGuest() {
			a.deny(r, principal, gateGuest, nil)
			a.rs.Error(w, r, iam.GuestRestricted())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Auth) deny(r *http.Request, principal *auth.Principal, gate string, wanted []string) {
	a.metrics.RecordDenial(r.Context(), gate)
	a.log.WithFields(logrus.Fields{
		"principal": principal.Subject(),
		"role":      principal.RoleName,
		"gate":      gate,
		"wanted":    wanted,
		"path":      r.URL.Path,
	}).Info("request denied")
}
