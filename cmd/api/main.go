package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/casierlabs/casier-backend/api/routes"
	"github.com/casierlabs/casier-backend/internal/auth"
	"github.com/casierlabs/casier-backend/internal/exports"
	"github.com/casierlabs/casier-backend/internal/lockers"
	"github.com/casierlabs/casier-backend/internal/payments"
	"github.com/casierlabs/casier-backend/internal/reservations"
	"github.com/casierlabs/casier-backend/internal/users"
	stripewebhook "github.com/casierlabs/casier-backend/internal/webhooks/stripe"
	"github.com/casierlabs/casier-backend/pkg/config"
	"github.com/casierlabs/casier-backend/pkg/db"
	"github.com/casierlabs/casier-backend/pkg/logger"
	"github.com/casierlabs/casier-backend/pkg/mail"
	"github.com/casierlabs/casier-backend/pkg/migrate"
	"github.com/casierlabs/casier-backend/pkg/redis"
	"github.com/casierlabs/casier-backend/pkg/stripe"
)

const webhookIdempotencyTTL = 24 * time.Hour

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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	var mailer mail.Sender
	if cfg.SMTP.Host != "" {
		smtpSender, err := mail.NewSMTPSender(cfg.SMTP)
		if err != nil {
			logg.Error(context.Background(), "failed to configure smtp", err)
			os.Exit(1)
		}
		mailer = smtpSender
	} else {
		logg.Warn(context.Background(), "smtp host not set, emails disabled")
	}

	userRepo := users.NewRepository(dbClient.DB())
	lockerRepo := lockers.NewRepository(dbClient.DB())
	reservationRepo := reservations.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	lockerService, err := lockers.NewService(lockerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create locker service", err)
		os.Exit(1)
	}

	reservationService, err := reservations.NewService(reservations.ServiceParams{
		Repo:       reservationRepo,
		LockerRepo: lockerRepo,
		UserRepo:   userRepo,
		Tx:         dbClient,
		Mailer:     mailer,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Gateway:         payments.NewStripeGateway(stripeClient),
		ReservationRepo: reservationRepo,
		Ledger:          reservationService,
		UserRepo:        userRepo,
		Mailer:          mailer,
		Logger:          logg,
		Currency:        stripeClient.Currency(),
		FrontendURL:     cfg.App.FrontendURL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	exportService, err := exports.NewService(exports.ServiceParams{Repo: reservationRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create export service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Ledger: reservationService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookIdempotencyTTL, "stripe_webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			authService,
			lockerService,
			reservationService,
			paymentService,
			exportService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
