// Package jobs runs periodic maintenance for the salon API on a cron
// schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/services/iam"
)

// DefaultPurgeSchedule is used when no schedule is configured.
const DefaultPurgeSchedule = "@hourly"

// jobTimeout bounds a single run of any job.
const jobTimeout = 2 * time.Minute

// Purger removes expired pending tokens and deny-list entries.
type Purger interface {
	PurgeExpired(ctx context.Context) (*iam.PurgeResult, error)
}

// Scheduler owns the cron runner and the jobs registered on it.
type Scheduler struct {
	cron *cron.Cron
	log  logrus.FieldLogger
}

// NewScheduler registers the credential purge on schedule. An empty schedule
// falls back to DefaultPurgeSchedule.
func NewScheduler(purger Purger, schedule string, log logrus.FieldLogger) (*Scheduler, error) {
	if purger == nil {
		return nil, fmt.Errorf("jobs: purger is required")
	}
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "jobs")

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})))
	s := &Scheduler{cron: c, log: log}

	if _, err := c.AddFunc(schedule, func() { s.runPurge(purger) }); err != nil {
		return nil, fmt.Errorf("schedule purge %q: %w", schedule, err)
	}
	log.WithField("schedule", schedule).Info("credential purge scheduled")
	return s, nil
}

func (s *Scheduler) runPurge(purger Purger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	res, err := purger.PurgeExpired(ctx)
	if err != nil {
		s.log.WithError(err).Error("credential purge failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"pending_tokens": res.PendingTokens,
		"revoked_jtis":   res.RevokedJTIs,
		"duration":       time.Since(start).String(),
	}).Info("credential purge completed")
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithFields(toFields(keysAndValues)).WithError(err).Error(msg)
}

func toFields(kv []any) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields[key] = kv[i+1]
	}
	return fields
}
