package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmolina-dev/libris-backend/api/routes"
	"github.com/rmolina-dev/libris-backend/internal/catalog"
	"github.com/rmolina-dev/libris-backend/internal/circulation"
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

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	circulationMetrics := metrics.NewCirculationMetrics(registry)

	conn := dbClient.DB()
	loanRepo := circulation.NewRepository(conn)
	itemRepo := catalog.NewRepository(conn)
	userRepo := users.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	reservationRepo := reservations.NewRepository(conn)
	fineRepo := fines.NewRepository(conn)

	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	settingsService, err := settings.NewService(settings.NewRepository(conn))
	if err != nil {
		fatal(logg, "failed to create settings service", err)
	}

	ledgerService, err := ledger.NewService(ledgerRepo)
	if err != nil {
		fatal(logg, "failed to create ledger service", err)
	}

	catalogService, err := catalog.NewService(catalog.ServiceDeps{
		DB:     dbClient,
		Repo:   itemRepo,
		Ledger: ledgerRepo,
		Loans:  loanRepo,
	})
	if err != nil {
		fatal(logg, "failed to create catalog service", err)
	}

	reservationService, err := reservations.NewService(reservations.ServiceDeps{
		DB:       dbClient,
		Repo:     reservationRepo,
		Items:    itemRepo,
		Users:    userRepo,
		Loans:    loanRepo,
		Settings: settingsService,
		Ledger:   ledgerRepo,
		Outbox:   outboxService,
		Logger:   logg,
	})
	if err != nil {
		fatal(logg, "failed to create reservation service", err)
	}

	circulationService, err := circulation.NewService(circulation.ServiceDeps{
		DB:           dbClient,
		Loans:        loanRepo,
		Items:        itemRepo,
		Users:        userRepo,
		Settings:     settingsService,
		Ledger:       ledgerRepo,
		Outbox:       outboxService,
		Reservations: reservationService,
		Metrics:      circulationMetrics,
		Logger:       logg,
	})
	if err != nil {
		fatal(logg, "failed to create circulation service", err)
	}

	fineService, err := fines.NewService(fines.ServiceDeps{
		DB:       dbClient,
		Repo:     fineRepo,
		Loans:    loanRepo,
		Settings: settingsService,
		Ledger:   ledgerRepo,
		Outbox:   outboxService,
		Metrics:  circulationMetrics,
		Logger:   logg,
	})
	if err != nil {
		fatal(logg, "failed to create fine service", err)
	}

	router := routes.NewRouter(routes.Deps{
		Config: cfg,
		Logger: logg,
		Health: map[string]routes.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Circulation:  circulationService,
		Reservations: reservationService,
		Fines:        fineService,
		Catalog:      catalogService,
		Settings:     settingsService,
		Ledger:       ledgerService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
