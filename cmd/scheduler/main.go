package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Pawieee/microbank/internal/config"
	"github.com/Pawieee/microbank/internal/metrics"
	"github.com/Pawieee/microbank/internal/notify"
	"github.com/Pawieee/microbank/internal/repository"
	"github.com/Pawieee/microbank/internal/scheduler"
	"github.com/Pawieee/microbank/internal/service"
	"github.com/Pawieee/microbank/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	reminders := service.NewReminderService(
		repository.ReposFor(db).Ledger,
		notify.NewLogNotifier(log),
		metrics.New(),
		log,
		cfg.Business.ReminderWindowDays,
	)

	s, err := scheduler.New(reminders, scheduler.Config{
		ReminderSpec: cfg.Scheduler.ReminderSpec,
		OverdueSpec:  cfg.Scheduler.OverdueSpec,
		Location:     cfg.GetLocation(),
		JobTimeout:   cfg.Scheduler.JobTimeout,
	}, log)
	if err != nil {
		log.Error("failed to set up cron jobs", "error", err)
		os.Exit(1)
	}

	s.Start()
	log.Info("scheduler started",
		"reminder_spec", cfg.Scheduler.ReminderSpec,
		"overdue_spec", cfg.Scheduler.OverdueSpec,
		"timezone", cfg.Scheduler.Timezone,
	)

	<-ctx.Done()
	log.Info("shutting down scheduler")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		log.Warn("scheduler stopped before jobs finished", "error", err)
	}

	log.Info("scheduler exited")
}
