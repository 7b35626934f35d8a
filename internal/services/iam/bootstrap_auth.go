package iam

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/auth"
)

// BootstrapTokenPrefix marks operator tokens handled by BootstrapTokenAuthenticator.
const BootstrapTokenPrefix = "sys_"

// BootstrapTokenAuthenticator maps one configured operator token to the
// system principal. It exists for development environments that have no
// Admin yet; `salonapi iam bootstrap` is the supported path. Every accepted
// request is logged at WARN.
type BootstrapTokenAuthenticator struct {
	token []byte
	log   logrus.FieldLogger
}

// NewBootstrapTokenAuthenticator creates the authenticator. The token must
// carry BootstrapTokenPrefix.
func NewBootstrapTokenAuthenticator(token string, log logrus.FieldLogger) (*BootstrapTokenAuthenticator, error) {
	if !strings.HasPrefix(token, BootstrapTokenPrefix) || len(token) <= len(BootstrapTokenPrefix) {
		return nil, errors.New("bootstrap token must start with " + BootstrapTokenPrefix)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BootstrapTokenAuthenticator{token: []byte(token), log: log}, nil
}

// Authenticate implements Authenticator. Bearer tokens without the reserved
// prefix are left to the next authenticator.
func (a *BootstrapTokenAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*auth.Principal, error) {
	token, ok := auth.BearerToken(req.Headers)
	if !ok || !strings.HasPrefix(token, BootstrapTokenPrefix) {
		return nil, nil
	}

	if subtle.ConstantTimeCompare([]byte(token), a.token) != 1 {
		a.log.Warn("rejected request with unknown bootstrap token")
		return nil, Unauthenticated("invalid or expired token")
	}

	a.log.WithField("principal", auth.RoleSystem).Warn("request authenticated with bootstrap token")
	return auth.SystemPrincipal(), nil
}
