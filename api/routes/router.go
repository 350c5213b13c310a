package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stagedoor/stagedoor-backend/api/controllers"
	webhookcontrollers "github.com/stagedoor/stagedoor-backend/api/controllers/webhooks"
	"github.com/stagedoor/stagedoor-backend/api/middleware"
	"github.com/stagedoor/stagedoor-backend/internal/analytics"
	"github.com/stagedoor/stagedoor-backend/internal/notifications"
	"github.com/stagedoor/stagedoor-backend/internal/offers"
	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/internal/proximity"
	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/internal/resale"
	"github.com/stagedoor/stagedoor-backend/internal/staff"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	squarewebhook "github.com/stagedoor/stagedoor-backend/internal/webhooks/square"
	"github.com/stagedoor/stagedoor-backend/pkg/config"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/redis"
	"github.com/stagedoor/stagedoor-backend/pkg/square"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *db.Client
	Redis       *redis.Client
	Square      *square.Client
	WebhookSvc  *squarewebhook.Service
	WebhookLock *squarewebhook.IdempotencyGuard

	Tickets       tickets.Service
	Resale        resale.Service
	Offers        offers.Service
	Proximity     proximity.Service
	Staff         staff.Service
	Payments      payments.Service
	Balances      payments.Balances
	Referrals     referrals.Service
	Analytics     analytics.Service
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	purchasePolicy := middleware.NewRateLimitPolicy("purchase", time.Minute, 30)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.WebhookSvc, deps.Square, deps.WebhookLock, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/events", func(r chi.Router) {
			r.Post("/", controllers.CreateEvent(deps.Tickets, logg))
			r.Get("/{eventID}", controllers.GetEvent(deps.Tickets, logg))
			r.Post("/{eventID}/ticket-types", controllers.CreateTicketType(deps.Tickets, logg))
			r.Get("/{eventID}/ticket-types", controllers.ListTicketTypes(deps.Tickets, logg))
			r.Get("/{eventID}/listings", controllers.ListEventListings(deps.Resale, logg))
			r.Post("/{eventID}/cash-sales", controllers.RecordCashSale(deps.Tickets, deps.Staff, logg))
			r.Get("/{eventID}/analytics/cash-summary", controllers.EventCashSummary(deps.Analytics, logg))
			r.Get("/{eventID}/analytics/stats", controllers.EventStats(deps.Analytics, logg))
			r.Post("/{eventID}/staff", controllers.GrantStaff(deps.Staff, logg))
			r.Delete("/{eventID}/staff/{userID}", controllers.RevokeStaff(deps.Staff, logg))
			r.Get("/{eventID}/staff", controllers.ListEventStaff(deps.Staff, logg))
		})

		r.Get("/ticket-types/{ticketTypeID}/availability", controllers.TicketTypeAvailability(deps.Tickets, logg))

		r.Route("/tickets", func(r chi.Router) {
			r.With(middleware.RateLimit(purchasePolicy, deps.Redis, logg)).
				Post("/purchase", controllers.PurchaseTicket(deps.Tickets, logg))
			r.Get("/", controllers.ListMyTickets(deps.Tickets, logg))
			r.Get("/{ticketID}", controllers.GetTicket(deps.Tickets, deps.Staff, logg))
			r.Post("/{ticketID}/checkin", controllers.CheckInTicket(deps.Tickets, deps.Staff, logg))
			r.Post("/{ticketID}/cancel", controllers.CancelTicket(deps.Tickets, logg))
			r.Post("/{ticketID}/transfer", controllers.IssueTransferToken(deps.Tickets, logg))
			r.Post("/redeem-transfer", controllers.RedeemTransferToken(deps.Tickets, logg))
		})

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", controllers.CreateListing(deps.Resale, logg))
			r.Get("/mine", controllers.ListMyListings(deps.Resale, logg))
			r.Get("/{listingID}", controllers.GetListing(deps.Resale, logg))
			r.Post("/{listingID}/cancel", controllers.CancelListing(deps.Resale, logg))
			r.With(middleware.RateLimit(purchasePolicy, deps.Redis, logg)).
				Post("/{listingID}/purchase", controllers.PurchaseListing(deps.Resale, logg))
		})

		r.Route("/offers", func(r chi.Router) {
			r.Post("/", controllers.CreateOffer(deps.Offers, logg))
			r.Get("/sent", controllers.ListSentOffers(deps.Offers, logg))
			r.Get("/received", controllers.ListReceivedOffers(deps.Offers, logg))
			r.Post("/link", controllers.LinkOffers(deps.Offers, logg))
			r.Get("/{offerID}", controllers.GetOffer(deps.Offers, logg))
			r.Post("/{offerID}/accept", controllers.AcceptOffer(deps.Offers, logg))
			r.Post("/{offerID}/decline", controllers.DeclineOffer(deps.Offers, logg))
			r.Post("/{offerID}/cancel", controllers.CancelOffer(deps.Offers, logg))
		})

		r.Route("/proximity", func(r chi.Router) {
			r.Post("/", controllers.InitiateProximity(deps.Proximity, deps.Staff, logg))
			r.Get("/customer", controllers.ListProximityAsCustomer(deps.Proximity, logg))
			r.Get("/vendor", controllers.ListProximityAsVendor(deps.Proximity, logg))
			r.Get("/{pendingID}", controllers.GetProximity(deps.Proximity, logg))
			r.With(middleware.RateLimit(purchasePolicy, deps.Redis, logg)).
				Post("/{pendingID}/confirm", controllers.ConfirmProximity(deps.Proximity, logg))
			r.Post("/{pendingID}/cancel", controllers.CancelProximity(deps.Proximity, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", controllers.ListMyPayments(deps.Payments, logg))
			r.Get("/{paymentID}", controllers.GetPayment(deps.Payments, logg))
			r.Post("/{paymentID}/refund", controllers.RefundPayment(deps.Payments, logg))
		})

		r.Route("/sellers", func(r chi.Router) {
			r.Get("/balance", controllers.GetSellerBalance(deps.Balances, logg))
			r.Post("/withdraw", controllers.WithdrawSellerBalance(deps.Balances, logg))
		})

		r.Route("/referrals", func(r chi.Router) {
			r.Post("/link", controllers.LinkReferral(deps.Referrals, logg))
			r.Get("/earnings", controllers.ListReferralEarnings(deps.Referrals, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})

		r.Get("/staff/mine", controllers.ListMyStaffRoles(deps.Staff, logg))
	})

	return r
}
