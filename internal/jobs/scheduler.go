// Package jobs runs the periodic audit chain verification.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"crmaudit/internal/logger"
	"crmaudit/internal/services"
)

const (
	defaultWindow     = 24 * time.Hour
	verifyTimeout     = 5 * time.Minute
	verificationJobID = "audit-chain-verification"
)

// Config controls the scheduler.
type Config struct {
	// VerifySchedule is a standard cron expression or descriptor such as
	// "@hourly".
	VerifySchedule string
	// Window is how far back each verification looks.
	Window time.Duration
}

// Verifier records a verification run for a window.
type Verifier interface {
	RecordVerification(ctx context.Context, from, to time.Time) (*services.VerificationResult, error)
}

// Scheduler owns the cron runner for background audit jobs.
type Scheduler struct {
	cron     *cron.Cron
	verifier Verifier
	window   time.Duration
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewScheduler registers the verification job. The job is not started.
func NewScheduler(verifier Verifier, cfg Config) (*Scheduler, error) {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}

	log := logger.Named("jobs")
	s := &Scheduler{
		verifier: verifier,
		window:   cfg.Window,
		log:      log,
		now:      time.Now,
	}

	cl := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(cfg.VerifySchedule, s.runScheduled); err != nil {
		return nil, fmt.Errorf("invalid verification schedule %q: %w", cfg.VerifySchedule, err)
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infow("audit jobs started", "entries", len(s.cron.Entries()))
}

// Stop prevents new runs and waits for a running job or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunVerification verifies the trailing window ending now.
func (s *Scheduler) RunVerification(ctx context.Context) (*services.VerificationResult, error) {
	to := s.now().UTC()
	from := to.Add(-s.window)

	result, err := s.verifier.RecordVerification(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.log.Infow("audit chain verified",
		"job", verificationJobID,
		"from", from,
		"to", to,
		"records_checked", result.RecordsChecked,
		"findings", len(result.Findings),
		"valid", result.Valid,
	)
	return result, nil
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	if _, err := s.RunVerification(ctx); err != nil {
		s.log.Errorw("scheduled audit verification failed", "job", verificationJobID, "error", err)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
