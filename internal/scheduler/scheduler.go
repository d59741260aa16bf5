// Package scheduler runs the daily reminder and overdue sweeps on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeps is implemented by service.ReminderService.
type Sweeps interface {
	SendDueReminders(ctx context.Context, now time.Time) (int, error)
	FlagOverdue(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	ReminderSpec string
	OverdueSpec  string
	Location     *time.Location
	// JobTimeout bounds a single sweep. Zero means no limit.
	JobTimeout time.Duration
}

type Scheduler struct {
	cron   *cron.Cron
	sweeps Sweeps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(sweeps Sweeps, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger = logger.With("component", "scheduler")

	cl := cronLogger{logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeps: sweeps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}

	if _, err := s.cron.AddFunc(cfg.ReminderSpec, func() { s.RunReminders(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduling reminders %q: %w", cfg.ReminderSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.OverdueSpec, func() { s.RunOverdue(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduling overdue sweep %q: %w", cfg.OverdueSpec, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("job scheduled", "entry", e.ID, "next", e.Next)
	}
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunReminders sends due-date reminders as of now in the scheduler's zone.
func (s *Scheduler) RunReminders(ctx context.Context) {
	ctx, cancel := s.jobContext(ctx)
	defer cancel()

	start := time.Now()
	sent, err := s.sweeps.SendDueReminders(ctx, s.now().In(s.cfg.Location))
	if err != nil {
		s.logger.ErrorContext(ctx, "reminder sweep failed", "sent", sent, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "reminder sweep finished", "sent", sent, "duration", time.Since(start))
}

// RunOverdue flags loans whose due date has passed.
func (s *Scheduler) RunOverdue(ctx context.Context) {
	ctx, cancel := s.jobContext(ctx)
	defer cancel()

	start := time.Now()
	n, err := s.sweeps.FlagOverdue(ctx, s.now().In(s.cfg.Location))
	if err != nil {
		s.logger.ErrorContext(ctx, "overdue sweep failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "overdue sweep finished", "overdue", n, "duration", time.Since(start))
}

func (s *Scheduler) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.JobTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.JobTimeout)
	}
	return context.WithCancel(ctx)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
