package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

type offerSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// OfferSweepJobParams configure the offer expiry sweeper.
type OfferSweepJobParams struct {
	Logger *logger.Logger
	Offers offerSweeper
}

// NewOfferSweepJob builds the cron job that expires stale favor offers.
func NewOfferSweepJob(params OfferSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Offers == nil {
		return nil, fmt.Errorf("offers service required")
	}
	return &offerSweepJob{
		logg:   params.Logger,
		offers: params.Offers,
		now:    time.Now,
	}, nil
}

type offerSweepJob struct {
	logg   *logger.Logger
	offers offerSweeper
	now    func() time.Time
}

func (j *offerSweepJob) Name() string { return "offer-sweep" }

func (j *offerSweepJob) Run(ctx context.Context) error {
	expired, err := j.offers.SweepExpired(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("offer sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"rows_expired": expired})
	j.logg.Info(logCtx, "offer sweep complete")
	return nil
}
