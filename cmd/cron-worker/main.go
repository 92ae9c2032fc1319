package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rmolina-dev/libris-backend/internal/catalog"
	"github.com/rmolina-dev/libris-backend/internal/circulation"
	"github.com/rmolina-dev/libris-backend/internal/cron"
	"github.com/rmolina-dev/libris-backend/internal/fines"
	"github.com/rmolina-dev/libris-backend/internal/ledger"
	"github.com/rmolina-dev/libris-backend/internal/reservations"
	"github.com/rmolina-dev/libris-backend/internal/settings"
	"github.com/rmolina-dev/libris-backend/internal/users"
	"github.com/rmolina-dev/libris-backend/pkg/config"
	"github.com/rmolina-dev/libris-backend/pkg/db"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
	"github.com/rmolina-dev/libris-backend/pkg/metrics"
	"github.com/rmolina-dev/libris-backend/pkg/migrate"
	"github.com/rmolina-dev/libris-backend/pkg/outbox"
	"github.com/rmolina-dev/libris-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	conn := dbClient.DB()
	loanRepo := circulation.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	settingsService, err := settings.NewService(settings.NewRepository(conn))
	if err != nil {
		fatal(logg, "failed to create settings service", err)
	}

	reservationService, err := reservations.NewService(reservations.ServiceDeps{
		DB:       dbClient,
		Repo:     reservations.NewRepository(conn),
		Items:    catalog.NewRepository(conn),
		Users:    users.NewRepository(conn),
		Loans:    loanRepo,
		Settings: settingsService,
		Ledger:   ledgerRepo,
		Outbox:   outboxService,
		Logger:   logg,
	})
	if err != nil {
		fatal(logg, "failed to create reservation service", err)
	}

	fineService, err := fines.NewService(fines.ServiceDeps{
		DB:       dbClient,
		Repo:     fines.NewRepository(conn),
		Loans:    loanRepo,
		Settings: settingsService,
		Ledger:   ledgerRepo,
		Outbox:   outboxService,
		Metrics:  metrics.NewCirculationMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		fatal(logg, "failed to create fine service", err)
	}

	dueReminder, err := cron.NewDueReminderJob(cron.DueReminderJobParams{
		Logger: logg,
		DB:     dbClient,
		Loans:  loanRepo,
		Outbox: outboxService,
	})
	if err != nil {
		fatal(logg, "failed to create due reminder job", err)
	}

	overdueNotice, err := cron.NewOverdueNoticeJob(cron.OverdueNoticeJobParams{
		Logger:   logg,
		DB:       dbClient,
		Loans:    loanRepo,
		Settings: settingsService,
		Outbox:   outboxService,
	})
	if err != nil {
		fatal(logg, "failed to create overdue notice job", err)
	}

	overdueFines, err := cron.NewOverdueFineJob(cron.OverdueFineJobParams{
		Logger: logg,
		Fines:  fineService,
	})
	if err != nil {
		fatal(logg, "failed to create overdue fine job", err)
	}

	reservationExpiry, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:       logg,
		Reservations: reservationService,
	})
	if err != nil {
		fatal(logg, "failed to create reservation expiry job", err)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.Cron.LockKey, cfg.Cron.LockTTL)
	if err != nil {
		fatal(logg, "failed to create cron lock", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(dueReminder, overdueNotice, overdueFines, reservationExpiry),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		fatal(logg, "failed to create cron service", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
