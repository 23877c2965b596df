package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/casierlabs/casier-backend/internal/cron"
	"github.com/casierlabs/casier-backend/internal/lockers"
	"github.com/casierlabs/casier-backend/internal/reservations"
	"github.com/casierlabs/casier-backend/internal/users"
	"github.com/casierlabs/casier-backend/pkg/config"
	"github.com/casierlabs/casier-backend/pkg/db"
	"github.com/casierlabs/casier-backend/pkg/logger"
	"github.com/casierlabs/casier-backend/pkg/mail"
	"github.com/casierlabs/casier-backend/pkg/metrics"
	"github.com/casierlabs/casier-backend/pkg/migrate"
	"github.com/casierlabs/casier-backend/pkg/redis"
)

const lockKeyFormat = "casier:sweeper:lock:%s"

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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reservationRepo := reservations.NewRepository(dbClient.DB())
	lockerRepo := lockers.NewRepository(dbClient.DB())
	userRepo := users.NewRepository(dbClient.DB())

	reservationService, err := reservations.NewService(reservations.ServiceParams{
		Repo:       reservationRepo,
		LockerRepo: lockerRepo,
		UserRepo:   userRepo,
		Tx:         dbClient,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:  logg,
		Sweeper: reservationService,
		Metrics: metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry job", err)
		os.Exit(1)
	}

	pendingJob, err := cron.NewPendingCheckoutJob(cron.PendingCheckoutJobParams{
		Logger:     logg,
		Sweeper:    reservationService,
		Metrics:    metricsCollector,
		PendingTTL: cfg.Sweeper.PendingTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending checkout job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob, pendingJob)

	if cfg.SMTP.Host != "" {
		mailer, err := mail.NewSMTPSender(cfg.SMTP)
		if err != nil {
			logg.Error(context.Background(), "failed to configure smtp", err)
			os.Exit(1)
		}
		reminderJob, err := cron.NewExpiryReminderJob(cron.ExpiryReminderJobParams{
			Logger:    logg,
			Source:    reservationRepo,
			Mailer:    mailer,
			Metrics:   metricsCollector,
			Lookahead: cfg.Sweeper.ReminderLookahead,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create reminder job", err)
			os.Exit(1)
		}
		registry.Register(reminderJob)
	} else {
		logg.Warn(context.Background(), "smtp host not set, expiry reminders disabled")
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Sweeper.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting sweep worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
