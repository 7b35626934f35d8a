package middleware

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/respond"
	"github.com/salonbook/salonapi/internal/services/iam"
	"github.com/salonbook/salonapi/internal/telemetry"
)

// Authenticator is the slice of iam.Service the middleware depends on.
type Authenticator interface {
	AuthenticateRequest(ctx context.Context, req iam.AuthRequest) (*auth.Principal, error)
}

// Auth builds the authentication and authorization middleware for the chi
// router. Every rejection is written through the shared Responder so the
// envelope matches handler errors.
type Auth struct {
	iam     Authenticator
	rs      *respond.Responder
	metrics *telemetry.AuthMetrics
	log     logrus.FieldLogger
}

// NewAuth creates the middleware set. metrics may be nil.
func NewAuth(svc Authenticator, rs *respond.Responder, metrics *telemetry.AuthMetrics, log logrus.FieldLogger) *Auth {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Auth{
		iam:     svc,
		rs:      rs,
		metrics: metrics,
		log:     log.WithField("component", "middleware.auth"),
	}
}

// Authenticate requires a valid credential. Requests without one, or with
// one the IAM service rejects, never reach next.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.iam.AuthenticateRequest(r.Context(), iam.NewAuthRequest(r))
		if err != nil {
			a.log.WithError(err).WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			}).Debug("authentication failed")
			a.rs.Error(w, r, err)
			return
		}
		if principal == nil {
			a.rs.Error(w, r, iam.Unauthenticated("authentication required"))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetPrincipal(r.Context(), principal)))
	})
}

// OptionalAuthenticate attaches a principal when the request carries a valid
// credential and otherwise continues anonymously. It never rejects.
func (a *Auth) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.iam.AuthenticateRequest(r.Context(), iam.NewAuthRequest(r))
		if err != nil || principal == nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.SetPrincipal(r.Context(), principal)))
	})
}
