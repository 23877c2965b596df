package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/casierlabs/casier-backend/api/controllers"
	webhookcontrollers "github.com/casierlabs/casier-backend/api/controllers/webhooks"
	"github.com/casierlabs/casier-backend/api/middleware"
	"github.com/casierlabs/casier-backend/internal/auth"
	"github.com/casierlabs/casier-backend/internal/exports"
	"github.com/casierlabs/casier-backend/internal/lockers"
	"github.com/casierlabs/casier-backend/internal/payments"
	"github.com/casierlabs/casier-backend/internal/reservations"
	stripewebhook "github.com/casierlabs/casier-backend/internal/webhooks/stripe"
	"github.com/casierlabs/casier-backend/pkg/config"
	"github.com/casierlabs/casier-backend/pkg/db"
	"github.com/casierlabs/casier-backend/pkg/enums"
	"github.com/casierlabs/casier-backend/pkg/logger"
	"github.com/casierlabs/casier-backend/pkg/redis"
	"github.com/casierlabs/casier-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	authService auth.Service,
	lockerService lockers.Service,
	reservationService reservations.Service,
	paymentService payments.Service,
	exportService exports.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.FrontendURL),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(authService, logg))
		r.Post("/login", controllers.AuthLogin(authService, logg))
	})

	r.Route("/api/v1/lockers", func(r chi.Router) {
		r.Get("/", controllers.ListLockers(lockerService, logg))
		r.Get("/nearby", controllers.NearbyLockers(lockerService, logg))
		r.Get("/stats", controllers.LockerStats(lockerService, logg))
		r.Get("/{id}", controllers.GetLocker(lockerService, logg))
	})
	r.Get("/api/v1/neighborhoods", controllers.ListNeighborhoods(lockerService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/auth/me", controllers.AuthProfile(authService, logg))

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.CreateReservation(reservationService, logg))
			r.Get("/", controllers.ListMyReservations(reservationService, logg))
			r.Get("/{id}", controllers.GetReservation(reservationService, logg))
			r.Patch("/{id}", controllers.UpdateReservation(reservationService, logg))
			r.Delete("/{id}", controllers.CancelReservation(reservationService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/create", controllers.PaymentCheckout(paymentService, logg))
			r.Post("/confirm", controllers.PaymentConfirm(paymentService, logg))
			r.Get("/verify/{sessionID}", controllers.PaymentVerify(paymentService, logg))
			r.Post("/refund/{id}", controllers.RefundReservation(paymentService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

		r.Route("/lockers", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateLocker(lockerService, logg))
			r.Patch("/{id}", controllers.AdminUpdateLocker(lockerService, logg))
			r.Delete("/{id}", controllers.AdminDeleteLocker(lockerService, logg))
		})

		r.Post("/reservations/{id}/refund", controllers.RefundReservation(paymentService, logg))
		r.Get("/exports/reservations", controllers.AdminExportReservations(exportService, logg))
		r.Get("/stats", controllers.AdminStats(exportService, logg))
	})

	return r
}
