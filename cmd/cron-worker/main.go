package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stagedoor/stagedoor-backend/internal/cron"
	"github.com/stagedoor/stagedoor-backend/internal/notifications"
	"github.com/stagedoor/stagedoor-backend/internal/offers"
	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/internal/proximity"
	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/internal/resale"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/config"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/metrics"
	"github.com/stagedoor/stagedoor-backend/pkg/realtime"
	"github.com/stagedoor/stagedoor-backend/pkg/redis"
	"github.com/stagedoor/stagedoor-backend/pkg/square"
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

	notificationRepo := notifications.NewRepository(gdb)
	notificationSvc, err := notifications.NewService(notificationRepo, logg)
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

	capacityRepo := tickets.NewCapacityRepository(gdb)
	ticketSvc, err := tickets.NewService(tickets.ServiceParams{
		DB:            dbClient,
		Repo:          tickets.NewRepository(gdb),
		Capacity:      capacityRepo,
		Payments:      paymentSvc,
		Referrals:     referralSvc,
		Notifications: notificationSvc,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ticket service", err)
		os.Exit(1)
	}

	resaleRepo := resale.NewRepository(gdb)

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

	offerSweep, err := cron.NewOfferSweepJob(cron.OfferSweepJobParams{
		Logger: logg,
		Offers: offerSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create offer sweep job", err)
		os.Exit(1)
	}

	proximitySweep, err := cron.NewProximitySweepJob(cron.ProximitySweepJobParams{
		Logger:    logg,
		Proximity: proximitySvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create proximity sweep job", err)
		os.Exit(1)
	}

	denormAudit, err := cron.NewDenormAuditJob(cron.DenormAuditJobParams{
		Logger:   logg,
		Capacity: capacityRepo,
		Listings: resaleRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create denorm audit job", err)
		os.Exit(1)
	}

	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notificationRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, cfg.Cron.LockKey, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(offerSweep, proximitySweep, denormAudit, notificationCleanup)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
