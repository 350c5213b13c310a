package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/stagedoor/stagedoor-backend/api/routes"
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
	"github.com/stagedoor/stagedoor-backend/pkg/migrate"
	"github.com/stagedoor/stagedoor-backend/pkg/realtime"
	"github.com/stagedoor/stagedoor-backend/pkg/redis"
	"github.com/stagedoor/stagedoor-backend/pkg/square"
)

const webhookDedupeTTL = 7 * 24 * time.Hour

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

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create square client", err)
		os.Exit(1)
	}

	publisher, err := realtime.NewPubNubPublisher(cfg.PubNub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create realtime publisher", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()

	referralSvc, err := referrals.NewService(referrals.NewRepository(gdb), cfg.Referral)
	if err != nil {
		logg.Error(context.Background(), "failed to create referral service", err)
		os.Exit(1)
	}

	notificationSvc, err := notifications.NewService(notifications.NewRepository(gdb), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	feeSchedule, err := payments.NewSchedule(cfg.Fees)
	if err != nil {
		logg.Error(context.Background(), "failed to build fee schedule", err)
		os.Exit(1)
	}

	processor, err := payments.NewSquareProcessor(squareClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create square processor", err)
		os.Exit(1)
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		DB:        dbClient,
		Repo:      payments.NewRepository(gdb),
		Processor: processor,
		Referrals: referralSvc,
		Schedule:  feeSchedule,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	balanceSvc, err := payments.NewBalances(payments.BalancesParams{
		Processor: processor,
		Cache:     redisClient,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create balance service", err)
		os.Exit(1)
	}

	ticketRepo := tickets.NewRepository(gdb)
	ticketSvc, err := tickets.NewService(tickets.ServiceParams{
		DB:            dbClient,
		Repo:          ticketRepo,
		Capacity:      tickets.NewCapacityRepository(gdb),
		Payments:      paymentSvc,
		Referrals:     referralSvc,
		Notifications: notificationSvc,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ticket service", err)
		os.Exit(1)
	}

	resaleSvc, err := resale.NewService(resale.ServiceParams{
		DB:            dbClient,
		Repo:          resale.NewRepository(gdb),
		TicketRepo:    ticketRepo,
		Payments:      paymentSvc,
		Notifications: notificationSvc,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create resale service", err)
		os.Exit(1)
	}

	offerSvc, err := offers.NewService(offers.ServiceParams{
		DB:            dbClient,
		Repo:          offers.NewRepository(gdb),
		Tickets:       ticketSvc,
		Payments:      paymentSvc,
		Referrals:     referralSvc,
		Notifications: notificationSvc,
		Logger:        logg,
		Config:        cfg.Offers,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create offer service", err)
		os.Exit(1)
	}

	proximitySvc, err := proximity.NewService(proximity.ServiceParams{
		DB:        dbClient,
		Repo:      proximity.NewRepository(gdb),
		Tickets:   ticketSvc,
		Payments:  paymentSvc,
		Referrals: referralSvc,
		Publisher: publisher,
		Logger:    logg,
		Config:    cfg.Proximity,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create proximity service", err)
		os.Exit(1)
	}

	staffSvc, err := staff.NewService(staff.ServiceParams{
		Repo:          staff.NewRepository(gdb),
		Tickets:       ticketSvc,
		Notifications: notificationSvc,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create staff service", err)
		os.Exit(1)
	}

	analyticsSvc, err := analytics.NewService(analytics.ServiceParams{
		Repo:   analytics.NewRepository(gdb),
		Staff:  staffSvc,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics service", err)
		os.Exit(1)
	}

	webhookSvc, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Payments: paymentSvc,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookLock, err := squarewebhook.NewIdempotencyGuard(redisClient, webhookDedupeTTL, "webhooks:square")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Square:      squareClient,
			WebhookSvc:  webhookSvc,
			WebhookLock: webhookLock,

			Tickets:       ticketSvc,
			Resale:        resaleSvc,
			Offers:        offerSvc,
			Proximity:     proximitySvc,
			Staff:         staffSvc,
			Payments:      paymentSvc,
			Balances:      balanceSvc,
			Referrals:     referralSvc,
			Analytics:     analyticsSvc,
			Notifications: notificationSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
