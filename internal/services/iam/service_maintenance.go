package iam

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/telemetry"
)

// revokedJTIGrace keeps deny-list entries a little past exp to absorb clock
// skew between replicas.
const revokedJTIGrace = 5 * time.Minute

// PurgeExpired implements Service.
func (s *iamService) PurgeExpired(ctx context.Context) (*PurgeResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.PurgeExpired")
	defer span.End()

	tokens, err := s.repos.PendingTokens.DeleteStale(ctx, s.clock())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	jtis, err := s.repos.RevokedJTIs.DeleteExpired(ctx, revokedJTIGrace)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &PurgeResult{PendingTokens: tokens, RevokedJTIs: jtis}
	s.log.WithFields(logrus.Fields{
		"pending_tokens": result.PendingTokens,
		"revoked_jtis":   result.RevokedJTIs,
	}).Debug("purged expired credentials")
	return result, nil
}
