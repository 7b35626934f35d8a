package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/auth"
	salonmw "github.com/salonbook/salonapi/internal/middleware"
	"github.com/salonbook/salonapi/internal/respond"
	"github.com/salonbook/salonapi/internal/telemetry"
)

// EventHub upgrades admin connections for the live event feed.
type EventHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request, subject string) error
}

// RouterOptions controls the construction of the salon HTTP router.
// IAMService, Auth and Responder are required; everything else is optional.
type RouterOptions struct {
	IAMService    iamService
	Auth          *salonmw.Auth
	Responder     *respond.Responder
	RateLimiter   *salonmw.RateLimiter
	Hub           EventHub
	Logger        logrus.FieldLogger
	ServerMetrics *telemetry.ServerMetrics
	CORSOptions   *cors.Options
	HealthHandler http.HandlerFunc

	// TrustProxyHeaders makes X-Forwarded-For, X-Real-IP and True-Client-IP
	// the client address. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// DefaultCORSOptions returns the CORS policy for the given browser origins.
func DefaultCORSOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true,"status":"ok"}`))
}

type handlers struct {
	iam      iamService
	rs       *respond.Responder
	validate *validator.Validate
	hub      EventHub
	log      logrus.FieldLogger
}

// NewRouter assembles the chi router with shared middleware and every salon
// route mounted.
func NewRouter(opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &handlers{
		iam:      opts.IAMService,
		rs:       opts.Responder,
		validate: newValidator(),
		hub:      opts.Hub,
		log:      log.WithField("component", "server"),
	}
	a := opts.Auth

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(salonmw.RequestLogger(log))
	r.Use(salonmw.Recover(h.rs, log))
	r.Use(salonmw.Metrics(opts.ServerMetrics))

	corsCfg := DefaultCORSOptions(nil)
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		h.rs.Fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		h.rs.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	limited := func(next http.Handler) http.Handler { return next }
	if opts.RateLimiter != nil {
		limited = opts.RateLimiter.Handler
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(limited).Post("/register", h.handleRegister)
		r.With(limited).Post("/verify-email", h.handleVerifyEmail)
		r.With(limited).Post("/login", h.handleLogin)
		r.With(limited).Post("/guest", h.handleGuest)
		r.Post("/refresh-token", h.handleRefresh)
		r.With(limited).Post("/forgot-password", h.handleForgotPassword)
		r.Post("/reset-password", h.handleResetPassword)
		r.Get("/setup-password/{token}", h.handleVerifySetupToken)
		r.Post("/set-password", h.handleSetPassword)

		r.With(a.OptionalAuthenticate).Get("/me", h.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(a.Authenticate)
			r.Post("/logout", h.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(a.BlockGuests)
				r.Post("/change-password", h.handleChangePassword)
				r.Post("/send-change-password-otp", h.handleSendChangePasswordOTP)
				r.Post("/change-password-otp", h.handleChangePasswordOTP)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.Authenticate)

		r.With(a.RequirePermission(auth.RolesView)).Get("/permissions", h.handleListPermissions)

		r.Route("/roles", func(r chi.Router) {
			r.With(a.RequirePermission(auth.RolesView)).Get("/", h.handleListRoles)
			r.With(a.RequirePermission(auth.RolesView)).Get("/{id}", h.handleGetRole)
			r.With(a.RequirePermission(auth.RolesManage)).Post("/", h.handleCreateRole)
			r.With(a.RequirePermission(auth.RolesManage)).Put("/{id}/permissions", h.handleSetRolePermissions)
			r.With(a.RequirePermission(auth.RolesManage)).Delete("/{id}", h.handleDeleteRole)
		})

		r.With(a.RequirePermission(auth.UsersManage)).Post("/users/role-assignments", h.handleAssignRole)
	})

	if opts.Hub != nil {
		r.With(queryTokenToHeader, a.Authenticate, a.RequirePermission(auth.RolesView)).
			Get("/ws/admin", h.handleAdminEvents)
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	return r
}

// queryTokenToHeader lets browser WebSocket clients, which cannot set
// headers, pass the access token as ?access_token=.
func queryTokenToHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("access_token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// NewHTTPServer wraps handler with the read, write and idle timeouts used in
// production.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
