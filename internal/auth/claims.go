package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
)

// IdentityClaims is the identity carried in a token: either {id} for a
// registered user or {sessionId, isGuest:true} for a guest session. Tokens
// never carry roles or permissions.
type IdentityClaims struct {
	UserID    string `mapstructure:"id"`
	SessionID string `mapstructure:"sessionId"`
	IsGuest   bool   `mapstructure:"isGuest"`

	// Set on verification only.
	JTI       string    `mapstructure:"jti"`
	ExpiresAt time.Time `mapstructure:"-"`
}

// RegisteredIdentity returns claims for a stored user.
func RegisteredIdentity(userID string) IdentityClaims {
	return IdentityClaims{UserID: userID}
}

// GuestIdentity returns claims for an anonymous session.
func GuestIdentity(sessionID string) IdentityClaims {
	return IdentityClaims{SessionID: sessionID, IsGuest: true}
}

// Identity strips the per-token fields, leaving what is re-signed on refresh.
func (c IdentityClaims) Identity() IdentityClaims {
	return IdentityClaims{UserID: c.UserID, SessionID: c.SessionID, IsGuest: c.IsGuest}
}

// Subject returns the user id or guest session id.
func (c IdentityClaims) Subject() string {
	if c.IsGuest {
		return c.SessionID
	}
	return c.UserID
}

func (c IdentityClaims) validate() error {
	switch {
	case c.IsGuest && c.SessionID == "":
		return errors.New("guest identity requires a session id")
	case c.IsGuest && c.UserID != "":
		return errors.New("guest identity must not carry a user id")
	case !c.IsGuest && c.UserID == "":
		return errors.New("registered identity requires a user id")
	case !c.IsGuest && c.SessionID != "":
		return errors.New("registered identity must not carry a session id")
	}
	return nil
}

// DecodeIdentityClaims maps verified JWT claims onto IdentityClaims and checks
// that exactly one identity shape is present.
func DecodeIdentityClaims(claims jwt.MapClaims) (IdentityClaims, error) {
	var identity IdentityClaims
	if err := mapstructure.Decode(map[string]any(claims), &identity); err != nil {
		return IdentityClaims{}, fmt.Errorf("decode identity claims: %w", err)
	}
	if err := identity.validate(); err != nil {
		return IdentityClaims{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("read exp: %w", err)
	}
	if exp != nil {
		identity.ExpiresAt = exp.Time
	}
	return identity, nil
}
