package iam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/config"
	"github.com/salonbook/salonapi/internal/repository"
	"github.com/salonbook/salonapi/internal/telemetry"
)

const tracerName = "salonapi/services/iam"

// iamService implements the Service interface.
//
// It coordinates the repositories, the token service and the injected sinks.
// It holds no per-principal state, so one instance serves all requests.
type iamService struct {
	tx     repository.Transactor
	repos  repository.Repositories
	tokens *auth.TokenService

	publisher Publisher
	mailer    Mailer
	metrics   *telemetry.AuthMetrics
	log       logrus.FieldLogger

	cfg Config
	now func() time.Time

	authenticators []Authenticator
}

// Dependencies contains the runtime collaborators of the IAM service.
//
// Publisher, Mailer, Metrics, Logger and Clock are optional; nil values fall
// back to no-op sinks, the standard logger and time.Now.
type Dependencies struct {
	Transactor   repository.Transactor
	Repositories repository.Repositories
	Tokens       *auth.TokenService

	Publisher Publisher
	Mailer    Mailer
	Metrics   *telemetry.AuthMetrics
	Logger    logrus.FieldLogger
	Clock     func() time.Time
}

// Config contains the settings the IAM service reads.
// Separated from Dependencies to keep config apart from runtime collaborators.
type Config struct {
	Auth config.AuthConfig

	// ServerURL prefixes links placed in emails.
	ServerURL string

	// Environment gates the bootstrap token authenticator.
	Environment string
}

// ConfigFrom extracts the IAM settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Auth:        cfg.Auth,
		ServerURL:   cfg.ServerURL,
		Environment: cfg.Environment,
	}
}

// NewIAMService creates the IAM service and its authenticator chain.
//
// Authenticator priority:
//  1. BootstrapTokenAuthenticator, only when auth.bootstrap_token is set
//  2. BearerAuthenticator
//
// Returns an error when the bootstrap token is configured in production.
func NewIAMService(deps Dependencies, cfg Config) (Service, error) {
	if deps.Transactor == nil {
		return nil, errors.New("iam: transactor is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("iam: token service is required")
	}
	if deps.Repositories.Users == nil || deps.Repositories.Roles == nil ||
		deps.Repositories.Permissions == nil || deps.Repositories.PendingTokens == nil ||
		deps.Repositories.RevokedJTIs == nil {
		return nil, errors.New("iam: repositories are incomplete")
	}

	svc := &iamService{
		tx:        deps.Transactor,
		repos:     deps.Repositories,
		tokens:    deps.Tokens,
		publisher: deps.Publisher,
		mailer:    deps.Mailer,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		cfg:       cfg,
		now:       deps.Clock,
	}
	if svc.publisher == nil {
		svc.publisher = nopPublisher{}
	}
	if svc.mailer == nil {
		svc.mailer = nopMailer{}
	}
	if svc.log == nil {
		svc.log = logrus.StandardLogger()
	}
	svc.log = svc.log.WithField("component", "iam")
	if svc.now == nil {
		svc.now = time.Now
	}

	if cfg.Auth.BootstrapToken != "" {
		if cfg.Environment == config.EnvProduction {
			return nil, errors.New("iam: bootstrap token authenticator cannot be enabled in production")
		}
		bootstrap, err := NewBootstrapTokenAuthenticator(cfg.Auth.BootstrapToken, svc.log)
		if err != nil {
			return nil, fmt.Errorf("create bootstrap authenticator: %w", err)
		}
		svc.authenticators = append(svc.authenticators, bootstrap)
		svc.log.Warn("bootstrap token authenticator enabled; use `salonapi iam bootstrap` and unset SALON_AUTH_BOOTSTRAP_TOKEN")
	}
	svc.authenticators = append(svc.authenticators,
		NewBearerAuthenticator(deps.Tokens, deps.Repositories.Users, deps.Repositories.RevokedJTIs))

	return svc, nil
}

// AuthenticateRequest asks each authenticator in turn. The first one that
// recognises the credentials decides: a principal is returned as is and an
// error aborts the chain. When none recognise the request it is anonymous and
// both results are nil.
func (s *iamService) AuthenticateRequest(ctx context.Context, req AuthRequest) (*auth.Principal, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.AuthenticateRequest")
	defer span.End()
	start := time.Now()

	for _, a := range s.authenticators {
		p, err := a.Authenticate(ctx, req)
		switch {
		case err != nil:
			telemetry.RecordError(span, err)
			s.metrics.RecordAuthentication(ctx, "rejected", false, elapsedMs(start))
			return nil, err
		case p != nil:
			span.SetAttributes(
				attribute.String(telemetry.AttrPrincipalID, p.Subject()),
				attribute.String(telemetry.AttrPrincipalKind, string(p.Kind)),
			)
			s.metrics.RecordAuthentication(ctx, string(p.Kind), true, elapsedMs(start))
			return p, nil
		}
	}

	telemetry.AddEvent(span, "auth.anonymous")
	return nil, nil
}

func (s *iamService) clock() time.Time {
	return s.now().UTC()
}

// publish delivers an admin event; failures are logged only.
func (s *iamService) publish(ctx context.Context, event string, payload any) {
	if err := s.publisher.Publish(ctx, event, payload); err != nil {
		s.log.WithError(err).WithField("event", event).Warn("publish admin event failed")
	}
}

// mail sends a templated email; failures are logged only.
func (s *iamService) mail(ctx context.Context, to, template string, data map[string]any) {
	if err := s.mailer.Send(ctx, to, template, data); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"to":       to,
			"template": template,
		}).Warn("send email failed")
	}
}

func (s *iamService) link(path, token string) string {
	return fmt.Sprintf("%s%s/%s", s.cfg.ServerURL, path, token)
}

// actor names the principal performing a mutation, for logs and events.
func actor(ctx context.Context) string {
	if p, ok := auth.PrincipalFromContext(ctx); ok && p != nil {
		return p.Subject()
	}
	return "anonymous"
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

type nopMailer struct{}

func (nopMailer) Send(context.Context, string, string, map[string]any) error { return nil }
