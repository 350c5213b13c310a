package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

type handshakeSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// ProximitySweepJobParams configure the handshake expiry sweeper.
type ProximitySweepJobParams struct {
	Logger    *logger.Logger
	Proximity handshakeSweeper
}

// NewProximitySweepJob builds the cron job that expires stale payment
// handshakes and notifies their customers.
func NewProximitySweepJob(params ProximitySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Proximity == nil {
		return nil, fmt.Errorf("proximity service required")
	}
	return &proximitySweepJob{
		logg:      params.Logger,
		proximity: params.Proximity,
		now:       time.Now,
	}, nil
}

type proximitySweepJob struct {
	logg      *logger.Logger
	proximity handshakeSweeper
	now       func() time.Time
}

func (j *proximitySweepJob) Name() string { return "proximity-sweep" }

func (j *proximitySweepJob) Run(ctx context.Context) error {
	expired, err := j.proximity.SweepExpired(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("proximity sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"rows_expired": expired})
	j.logg.Info(logCtx, "proximity sweep complete")
	return nil
}
