package iam

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/config"
	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/db/dbtest"
	"github.com/salonbook/salonapi/internal/db/models"
	"github.com/salonbook/salonapi/internal/repository"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Issuer:              "salonapi-test",
		AccessSecret:        "access-secret-for-tests",
		RefreshSecret:       "refresh-secret-for-tests",
		AccessTTL:           time.Hour,
		RefreshTTL:          7 * 24 * time.Hour,
		LockoutThreshold:    3,
		LockoutDuration:     15 * time.Minute,
		SetupTokenTTL:       72 * time.Hour,
		ResetTokenTTL:       time.Hour,
		VerificationCodeTTL: 15 * time.Minute,
		OTPTTL:              10 * time.Minute,
		MaxCodeAttempts:     5,
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type publishedEvent struct {
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Event: event, Payload: payload})
	return nil
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.events))
	for _, e := range p.events {
		names = append(names, e.Event)
	}
	return names
}

type sentMail struct {
	To       string
	Template string
	Data     map[string]any
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, to, template string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Template: template, Data: data})
	return nil
}

// Last returns the most recent mail with template sent to to.
func (m *recordingMailer) Last(t *testing.T, to, template string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to && m.sent[i].Template == template {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent to %s", template, to)
	return sentMail{}
}

// LinkToken extracts the secret from a mailed link.
func (m sentMail) LinkToken() string {
	link, _ := m.Data["link"].(string)
	return link[strings.LastIndex(link, "/")+1:]
}

func (m sentMail) Code() string {
	code, _ := m.Data["code"].(string)
	return code
}

type testEnv struct {
	svc       *iamService
	db        *bun.DB
	repos     repository.Repositories
	tokens    *auth.TokenService
	clock     *fakeClock
	publisher *recordingPublisher
	mailer    *recordingMailer
	logs      *logtest.Hook
}

func newTestEnvWithDB(t *testing.T, db *bun.DB, mutate func(*Config)) *testEnv {
	t.Helper()

	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	cfg := Config{Auth: testAuthConfig(), ServerURL: "http://salon.test", Environment: config.EnvDevelopment}
	if mutate != nil {
		mutate(&cfg)
	}

	tokens, err := auth.NewTokenService(cfg.Auth, auth.WithClock(clock.Now))
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	repos := repository.NewBunRepositories(db)
	publisher := &recordingPublisher{}
	mailer := &recordingMailer{}

	svc, err := NewIAMService(Dependencies{
		Transactor:   repository.NewBunTransactor(db),
		Repositories: repos,
		Tokens:       tokens,
		Publisher:    publisher,
		Mailer:       mailer,
		Logger:       logger,
		Clock:        clock.Now,
	}, cfg)
	require.NoError(t, err)

	return &testEnv{
		svc:       svc.(*iamService),
		db:        db,
		repos:     repos,
		tokens:    tokens,
		clock:     clock,
		publisher: publisher,
		mailer:    mailer,
		logs:      hook,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDB(t, dbtest.NewSQLite(t), nil)
}

// createUser stores a verified user with the named seeded role and password.
func (e *testEnv) createUser(t *testing.T, email, roleName, password string) *models.User {
	t.Helper()
	ctx := context.Background()

	role, err := e.repos.Roles.GetByName(ctx, roleName)
	require.NoError(t, err)

	user := &models.User{
		ID:            bunx.NewUUIDv7(),
		Email:         email,
		RoleID:        &role.ID,
		EmailVerified: true,
	}
	if password != "" {
		hash, err := auth.HashPassword(password)
		require.NoError(t, err)
		user.PasswordHash = &hash
	}
	require.NoError(t, e.repos.Users.Create(ctx, user))
	return user
}

func (e *testEnv) bearer(token string) AuthRequest {
	return AuthRequest{Headers: map[string][]string{"Authorization": {"Bearer " + token}}}
}

func systemContext() context.Context {
	return auth.SetPrincipal(context.Background(), auth.SystemPrincipal())
}

func requireKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	require.Error(t, err)
	e, ok := AsError(err)
	require.Truef(t, ok, "expected *iam.Error, got %T: %v", err, err)
	require.Equalf(t, kind, e.Kind, "unexpected kind for %v", err)
	return e
}
