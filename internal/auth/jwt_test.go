package auth

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonbook/salonapi/internal/config"
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

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTokenService(t *testing.T) (*TokenService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Now().Truncate(time.Second)}
	svc, err := NewTokenService(testAuthConfig(), WithClock(clock.Now))
	require.NoError(t, err)
	return svc, clock
}

func TestNewTokenService_RejectsSharedSecret(t *testing.T) {
	t.Parallel()

	cfg := testAuthConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	_, err := NewTokenService(cfg)
	require.Error(t, err)
}

func TestTokenService_RegisteredRoundTrip(t *testing.T) {
	t.Parallel()
	svc, clock := newTestTokenService(t)

	pair, err := svc.IssueTokenPair(RegisteredIdentity("user-1"))
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, clock.Now().Add(time.Hour).Unix(), pair.AccessExpiresAt.Unix())
	assert.Equal(t, clock.Now().Add(7*24*time.Hour).Unix(), pair.RefreshExpiresAt.Unix())

	claims, err := svc.Verify(pair.AccessToken, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.False(t, claims.IsGuest)
	assert.NotEmpty(t, claims.JTI)
	assert.Equal(t, pair.AccessExpiresAt.Unix(), claims.ExpiresAt.Unix())
}

func TestTokenService_GuestClaimsCarryNoRoleOrPermissions(t *testing.T) {
	t.Parallel()
	svc, _ := newTestTokenService(t)

	pair, err := svc.IssueTokenPair(GuestIdentity("sess-1"))
	require.NoError(t, err)

	claims, err := svc.Verify(pair.AccessToken, TokenKindAccess)
	require.NoError(t, err)
	assert.True(t, claims.IsGuest)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Empty(t, claims.UserID)

	raw := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(pair.AccessToken, raw)
	require.NoError(t, err)
	for _, forbidden := range []string{"permissions", "role", "roleName", "id"} {
		assert.NotContains(t, raw, forbidden)
	}
}

func TestTokenService_SecretsAreNotInterchangeable(t *testing.T) {
	t.Parallel()
	svc, _ := newTestTokenService(t)

	pair, err := svc.IssueTokenPair(RegisteredIdentity("user-1"))
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken, TokenKindRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify(pair.RefreshToken, TokenKindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Expired(t *testing.T) {
	t.Parallel()
	svc, clock := newTestTokenService(t)

	pair, err := svc.IssueTokenPair(RegisteredIdentity("user-1"))
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = svc.Verify(pair.AccessToken, TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrInvalidToken)

	// Refresh token outlives the access token
	_, err = svc.Verify(pair.RefreshToken, TokenKindRefresh)
	require.NoError(t, err)
}

func TestTokenService_Tampered(t *testing.T) {
	t.Parallel()
	svc, _ := newTestTokenService(t)

	pair, err := svc.IssueTokenPair(RegisteredIdentity("user-1"))
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := map[string]string{
		"bad signature": tampered,
		"garbage":       "not-a-jwt",
		"empty":         "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(token, TokenKindAccess)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenService_RejectsForeignIssuer(t *testing.T) {
	t.Parallel()
	svc, _ := newTestTokenService(t)

	cfg := testAuthConfig()
	cfg.Issuer = "someone-else"
	other, err := NewTokenService(cfg)
	require.NoError(t, err)

	pair, err := other.IssueTokenPair(RegisteredIdentity("user-1"))
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken, TokenKindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Refresh(t *testing.T) {
	t.Parallel()
	svc, clock := newTestTokenService(t)

	pair, err := svc.IssueTokenPair(GuestIdentity("sess-9"))
	require.NoError(t, err)

	clock.Advance(3 * time.Hour)
	fresh, old, err := svc.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "sess-9", old.SessionID)
	assert.NotEmpty(t, old.JTI)

	claims, err := svc.Verify(fresh.AccessToken, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, GuestIdentity("sess-9"), claims.Identity())
	assert.NotEqual(t, old.JTI, claims.JTI)

	_, _, err = svc.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_IssueRejectsAmbiguousIdentity(t *testing.T) {
	t.Parallel()
	svc, _ := newTestTokenService(t)

	for _, id := range []IdentityClaims{
		{},
		{IsGuest: true},
		{UserID: "u", SessionID: "s"},
		{UserID: "u", SessionID: "s", IsGuest: true},
	} {
		_, err := svc.IssueTokenPair(id)
		assert.Error(t, err, "%+v", id)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer   abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.header != "" {
			h.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(h)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestHashToken(t *testing.T) {
	t.Parallel()
	assert.Equal(t, HashToken("x"), HashToken("x"))
	assert.NotEqual(t, HashToken("x"), HashToken("y"))
	assert.Len(t, HashToken("x"), 64)
}
