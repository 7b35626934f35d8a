package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/config"
	"github.com/salonbook/salonapi/internal/db/dbtest"
	salonmw "github.com/salonbook/salonapi/internal/middleware"
	"github.com/salonbook/salonapi/internal/notify"
	"github.com/salonbook/salonapi/internal/repository"
	"github.com/salonbook/salonapi/internal/respond"
	"github.com/salonbook/salonapi/internal/services/iam"
)

type mail struct {
	to, template string
	data         map[string]any
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mail
}

func (m *captureMailer) Send(_ context.Context, to, template string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail{to: to, template: template, data: data})
	return nil
}

func (m *captureMailer) last(t *testing.T, to, template string) mail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].to == to && m.sent[i].template == template {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail to %s", template, to)
	return mail{}
}

func (m mail) linkToken() string {
	link, _ := m.data["link"].(string)
	return link[strings.LastIndex(link, "/")+1:]
}

func (m mail) code() string {
	code, _ := m.data["code"].(string)
	return code
}

type testServer struct {
	handler http.Handler
	svc     iam.Service
	mailer  *captureMailer
	hub     *notify.Hub
}

func newTestServer(t *testing.T, configure ...func(*RouterOptions)) *testServer {
	t.Helper()

	db := dbtest.NewSQLite(t)
	authCfg := config.AuthConfig{
		Issuer:              "salonapi-test",
		AccessSecret:        "access-secret-for-tests",
		RefreshSecret:       "refresh-secret-for-tests",
		AccessTTL:           time.Hour,
		RefreshTTL:          24 * time.Hour,
		LockoutThreshold:    3,
		LockoutDuration:     15 * time.Minute,
		SetupTokenTTL:       72 * time.Hour,
		ResetTokenTTL:       time.Hour,
		VerificationCodeTTL: 15 * time.Minute,
		OTPTTL:              10 * time.Minute,
		MaxCodeAttempts:     5,
	}
	tokens, err := auth.NewTokenService(authCfg)
	require.NoError(t, err)

	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	mailer := &captureMailer{}
	hub := notify.NewHub(logger)
	t.Cleanup(hub.Close)

	svc, err := iam.NewIAMService(iam.Dependencies{
		Transactor:   repository.NewBunTransactor(db),
		Repositories: repository.NewBunRepositories(db),
		Tokens:       tokens,
		Publisher:    hub,
		Mailer:       mailer,
		Logger:       logger,
	}, iam.Config{Auth: authCfg, ServerURL: "http://salon.test", Environment: config.EnvDevelopment})
	require.NoError(t, err)

	rs := respond.New(false, logger)
	opts := RouterOptions{
		IAMService: svc,
		Auth:       salonmw.NewAuth(svc, rs, nil, logger),
		Responder:  rs,
		Hub:        hub,
		Logger:     logger,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	handler := NewRouter(opts)
	return &testServer{handler: handler, svc: svc, mailer: mailer, hub: hub}
}

type apiResponse struct {
	Status int
	Header http.Header
	Body   map[string]any
}

func (r apiResponse) data(t *testing.T) map[string]any {
	t.Helper()
	d, ok := r.Body["data"].(map[string]any)
	require.True(t, ok, "response has no object data: %v", r.Body)
	return d
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) apiResponse {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "192.0.2.1:1234"

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	out := apiResponse{Status: rec.Code, Header: rec.Header()}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	}
	return out
}

// bootstrapAdmin creates an admin account and returns its access token.
func (ts *testServer) bootstrapAdmin(t *testing.T) string {
	t.Helper()
	ctx := auth.SetPrincipal(context.Background(), auth.SystemPrincipal())
	_, err := ts.svc.BootstrapAdmin(ctx, iam.BootstrapInput{Email: "owner@salon.test", Name: "Owner", Password: "owner-password"})
	require.NoError(t, err)

	res := ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "owner@salon.test", "password": "owner-password"})
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	tokens := res.data(t)["tokens"].(map[string]any)
	return tokens["accessToken"].(string)
}

// registerCustomer registers and verifies a customer and returns its tokens.
func (ts *testServer) registerCustomer(t *testing.T, email, password string) map[string]any {
	t.Helper()
	res := ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": email, "name": "Client", "password": password})
	require.Equal(t, http.StatusCreated, res.Status, res.Body)

	code := ts.mailer.last(t, email, iam.TemplateVerifyEmail).code()
	res = ts.do(t, http.MethodPost, "/auth/verify-email", "", map[string]string{"email": email, "code": code})
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	return res.data(t)["tokens"].(map[string]any)
}
