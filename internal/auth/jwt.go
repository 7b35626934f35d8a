package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/salonbook/salonapi/internal/config"
)

var (
	// ErrInvalidToken covers bad signatures, malformed tokens and wrong token kinds.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a well-formed token is past its exp.
	ErrTokenExpired = errors.New("token expired")
)

// TokenKind distinguishes access from refresh tokens. Each kind has its own
// signing secret.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenPair is the result of a login, guest session or refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// TokenService mints and verifies HS256 bearer tokens. It never touches the
// database.
type TokenService struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for iat/exp and validation.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService validates cfg and builds a TokenService.
func NewTokenService(cfg config.AuthConfig, opts ...TokenOption) (*TokenService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("token service config: %w", err)
	}

	s := &TokenService{
		issuer:        cfg.Issuer,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueTokenPair signs an access and a refresh token for identity.
func (s *TokenService) IssueTokenPair(identity IdentityClaims) (TokenPair, error) {
	if err := identity.validate(); err != nil {
		return TokenPair{}, err
	}

	now := s.now()
	access, accessExp, err := s.sign(identity, TokenKindAccess, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.sign(identity, TokenKindRefresh, now)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks signature, expiry and kind, and returns the identity claims
// together with the token's jti and expiry.
func (s *TokenService) Verify(token string, kind TokenKind) (IdentityClaims, error) {
	secret, err := s.secretFor(kind)
	if err != nil {
		return IdentityClaims{}, err
	}

	parsed, err := jwt.Parse(token,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return IdentityClaims{}, ErrTokenExpired
		}
		return IdentityClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return IdentityClaims{}, ErrInvalidToken
	}
	if typ, _ := mapClaims["typ"].(string); typ != string(kind) {
		return IdentityClaims{}, fmt.Errorf("%w: expected %s token", ErrInvalidToken, kind)
	}

	identity, err := DecodeIdentityClaims(mapClaims)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identity, nil
}

// Refresh verifies a refresh token and issues a fresh pair for the same
// identity. The returned claims describe the presented refresh token so the
// caller can revoke it.
func (s *TokenService) Refresh(refreshToken string) (TokenPair, IdentityClaims, error) {
	old, err := s.Verify(refreshToken, TokenKindRefresh)
	if err != nil {
		return TokenPair{}, IdentityClaims{}, err
	}

	pair, err := s.IssueTokenPair(old.Identity())
	if err != nil {
		return TokenPair{}, IdentityClaims{}, err
	}
	return pair, old, nil
}

func (s *TokenService) sign(identity IdentityClaims, kind TokenKind, now time.Time) (string, time.Time, error) {
	secret, err := s.secretFor(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	ttl := s.accessTTL
	if kind == TokenKindRefresh {
		ttl = s.refreshTTL
	}
	exp := now.Add(ttl)

	claims := jwt.MapClaims{
		"iss": s.issuer,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"jti": uuid.NewString(),
		"typ": string(kind),
	}
	if identity.IsGuest {
		claims["sessionId"] = identity.SessionID
		claims["isGuest"] = true
	} else {
		claims["id"] = identity.UserID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, time.Unix(exp.Unix(), 0), nil
}

func (s *TokenService) secretFor(kind TokenKind) ([]byte, error) {
	switch kind {
	case TokenKindAccess:
		return s.accessSecret, nil
	case TokenKindRefresh:
		return s.refreshSecret, nil
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(h http.Header) (string, bool) {
	value := strings.TrimSpace(h.Get("Authorization"))
	if len(value) < 7 || !strings.EqualFold(value[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(value[7:])
	return token, token != ""
}

// HashToken returns the hex SHA-256 of a secret. Pending tokens are stored
// only in this form.
func HashToken(token string) string {
	hasher := sha256.New()
	hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}
