package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/stagedoor/stagedoor-backend/internal/resale"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

type soldCountAuditor interface {
	SoldCountMismatches(ctx context.Context) ([]tickets.SoldCountMismatch, error)
}

type listingStateAuditor interface {
	ListingStateMismatches(ctx context.Context) ([]resale.ListingStateMismatch, error)
}

// DenormAuditJobParams configure the denormalized-state audit.
type DenormAuditJobParams struct {
	Logger   *logger.Logger
	Capacity soldCountAuditor
	Listings listingStateAuditor
}

// NewDenormAuditJob builds the cron job that recomputes the derived columns
// (tier sold counters, ticket listing state) and reports every row where the
// stored value disagrees with the recount. The job only reports; repairing a
// drifted row is an operator decision.
func NewDenormAuditJob(params DenormAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Capacity == nil {
		return nil, fmt.Errorf("capacity repository required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	return &denormAuditJob{
		logg:     params.Logger,
		capacity: params.Capacity,
		listings: params.Listings,
	}, nil
}

type denormAuditJob struct {
	logg     *logger.Logger
	capacity soldCountAuditor
	listings listingStateAuditor
}

func (j *denormAuditJob) Name() string { return "denorm-audit" }

func (j *denormAuditJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.auditSoldCounts(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.auditListingState(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *denormAuditJob) auditSoldCounts(ctx context.Context) error {
	mismatches, err := j.capacity.SoldCountMismatches(ctx)
	if err != nil {
		return fmt.Errorf("sold count audit: %w", err)
	}
	for _, m := range mismatches {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"ticket_type_id": m.TicketTypeID.String(),
			"sold_count":     m.SoldCount,
			"actual_count":   m.ActualCount,
		})
		j.logg.Warn(logCtx, "sold counter disagrees with ticket recount")
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"mismatches": len(mismatches)})
	j.logg.Info(logCtx, "sold count audit complete")
	return nil
}

func (j *denormAuditJob) auditListingState(ctx context.Context) error {
	mismatches, err := j.listings.ListingStateMismatches(ctx)
	if err != nil {
		return fmt.Errorf("listing state audit: %w", err)
	}
	for _, m := range mismatches {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"ticket_id":          m.TicketID.String(),
			"listing_status":     m.ListingStatus,
			"has_active_listing": m.HasActiveListing,
		})
		j.logg.Warn(logCtx, "ticket listing state disagrees with listing ledger")
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"mismatches": len(mismatches)})
	j.logg.Info(logCtx, "listing state audit complete")
	return nil
}
