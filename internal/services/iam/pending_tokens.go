package iam

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/db/models"
	"github.com/salonbook/salonapi/internal/repository"
)

const (
	linkTokenBytes = 32
	codeDigits     = 6

	// DefaultMaxCodeAttempts applies when the config leaves it unset.
	DefaultMaxCodeAttempts = 5
)

// errWrongCode marks an InvalidToken whose failed attempt was written and
// must be committed.
var errWrongCode = errors.New("code does not match")

// Pending token lifecycle: Issued → Valid → {Consumed | Expired}.
//
// Link tokens (setup, reset) are looked up by hash. Numeric codes
// (verification, OTP) are too short to be unique, so they are checked against
// the (user_id, purpose) slot instead.

// issueLinkToken stores a fresh 32-byte hex secret in the user's slot for
// purpose and returns the plaintext.
func (s *iamService) issueLinkToken(ctx context.Context, tokens repository.PendingTokenRepository, userID string, purpose models.TokenPurpose, ttl time.Duration) (string, time.Time, error) {
	secret, err := auth.GenerateSecret(linkTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt, err := s.storePending(ctx, tokens, userID, purpose, secret, ttl)
	return secret, expiresAt, err
}

// issueCode stores a fresh numeric code in the user's slot for purpose.
func (s *iamService) issueCode(ctx context.Context, tokens repository.PendingTokenRepository, userID string, purpose models.TokenPurpose, ttl time.Duration) (string, time.Time, error) {
	code, err := auth.GenerateNumericCode(codeDigits)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt, err := s.storePending(ctx, tokens, userID, purpose, code, ttl)
	return code, expiresAt, err
}

func (s *iamService) storePending(ctx context.Context, tokens repository.PendingTokenRepository, userID string, purpose models.TokenPurpose, secret string, ttl time.Duration) (time.Time, error) {
	now := s.clock()
	pending := &models.PendingToken{
		ID:        bunx.NewUUIDv7(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: auth.HashToken(secret),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := tokens.Upsert(ctx, pending); err != nil {
		return time.Time{}, fmt.Errorf("store %s token: %w", purpose, err)
	}
	return pending.ExpiresAt, nil
}

// verifyLinkToken is a pure read. Unknown, consumed and wrong-purpose tokens
// are InvalidToken; a live token past its expiry is TokenExpired.
func (s *iamService) verifyLinkToken(ctx context.Context, tokens repository.PendingTokenRepository, purpose models.TokenPurpose, secret string) (*models.PendingToken, error) {
	if secret == "" {
		return nil, InvalidToken("invalid or already used token")
	}
	pending, err := tokens.GetByHash(ctx, purpose, auth.HashToken(secret))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, InvalidToken("invalid or already used token")
		}
		return nil, fmt.Errorf("load %s token: %w", purpose, err)
	}
	return s.checkPending(pending, "token")
}

// verifyCode checks a numeric code against the user's slot for purpose.
func (s *iamService) verifyCode(ctx context.Context, tokens repository.PendingTokenRepository, userID string, purpose models.TokenPurpose, code string) (*models.PendingToken, error) {
	pending, err := tokens.GetByUserPurpose(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, InvalidToken("invalid or already used code")
		}
		return nil, fmt.Errorf("load %s code: %w", purpose, err)
	}
	if subtle.ConstantTimeCompare([]byte(pending.TokenHash), []byte(auth.HashToken(code))) != 1 {
		if pending.ConsumedAt != nil {
			return nil, InvalidToken("invalid or already used code")
		}
		if err := tokens.RecordFailedAttempt(ctx, pending.ID, s.maxCodeAttempts(), s.clock()); err != nil {
			return nil, err
		}
		if pending.Attempts+1 >= s.maxCodeAttempts() {
			s.log.WithFields(logrus.Fields{
				"user_id": userID,
				"purpose": purpose,
			}).Warn("code burned after too many wrong attempts")
		}
		e := InvalidToken("invalid or already used code")
		e.Err = errWrongCode
		return nil, e
	}
	return s.checkPending(pending, "code")
}

// inCodeTx runs fn in a transaction that commits when fn fails only because a
// code was wrong, so the attempt counter survives the error.
func (s *iamService) inCodeTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	var wrong error
	err := s.tx.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		err := fn(ctx, repos)
		if errors.Is(err, errWrongCode) {
			wrong = err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return wrong
}

func (s *iamService) maxCodeAttempts() int {
	if s.cfg.Auth.MaxCodeAttempts > 0 {
		return s.cfg.Auth.MaxCodeAttempts
	}
	return DefaultMaxCodeAttempts
}

func (s *iamService) checkPending(pending *models.PendingToken, noun string) (*models.PendingToken, error) {
	if pending.ConsumedAt != nil {
		return nil, InvalidToken(fmt.Sprintf("invalid or already used %s", noun))
	}
	if pending.Expired(s.clock()) {
		return nil, TokenExpired(fmt.Sprintf("%s has expired", noun))
	}
	return pending, nil
}

// consume marks the token used. A concurrent consumer that won the race turns
// this call into InvalidToken.
func (s *iamService) consume(ctx context.Context, tokens repository.PendingTokenRepository, pending *models.PendingToken) error {
	if err := tokens.MarkConsumed(ctx, pending.ID, s.clock()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return InvalidToken("invalid or already used token")
		}
		return fmt.Errorf("consume %s token: %w", pending.Purpose, err)
	}
	return nil
}
