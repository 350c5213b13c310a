package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// CashSummaryRow aggregates the cash ledger for one event.
type CashSummaryRow struct {
	TotalCashCents     int64
	TotalFeeCents      int64
	FeesCollectedCents int64
	SaleCount          int64
	FeeChargedCount    int64
}

// SellerCashRow aggregates one seller's cash collection for an event.
type SellerCashRow struct {
	SellerID       uuid.UUID
	SaleCount      int64
	TotalCashCents int64
	TotalFeeCents  int64
}

// TicketCountsRow aggregates admission state for one event.
type TicketCountsRow struct {
	TotalSold int64
	CheckedIn int64
}

// Repository runs the read-only aggregation queries. All sums are computed in
// the database; only the hourly check-in histogram is bucketed in Go, from
// the raw timestamps, so the query stays portable across drivers.
type Repository interface {
	CashSummary(ctx context.Context, eventID uuid.UUID) (*CashSummaryRow, error)
	CashBySeller(ctx context.Context, eventID uuid.UUID) ([]SellerCashRow, error)
	TicketCounts(ctx context.Context, eventID uuid.UUID) (*TicketCountsRow, error)
	CardRevenueCents(ctx context.Context, eventID uuid.UUID) (int64, error)
	CheckinTimes(ctx context.Context, eventID uuid.UUID) ([]time.Time, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an analytics repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CashSummary(ctx context.Context, eventID uuid.UUID) (*CashSummaryRow, error) {
	var row CashSummaryRow
	err := r.db.WithContext(ctx).
		Model(&models.CashSale{}).
		Select(
			"COALESCE(SUM(amount_cents), 0) AS total_cash_cents, "+
				"COALESCE(SUM(fee_cents), 0) AS total_fee_cents, "+
				"COALESCE(SUM(CASE WHEN fee_charged THEN fee_cents ELSE 0 END), 0) AS fees_collected_cents, "+
				"COUNT(*) AS sale_count, "+
				"COALESCE(SUM(CASE WHEN fee_charged THEN 1 ELSE 0 END), 0) AS fee_charged_count").
		Where("event_id = ?", eventID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) CashBySeller(ctx context.Context, eventID uuid.UUID) ([]SellerCashRow, error) {
	var rows []SellerCashRow
	err := r.db.WithContext(ctx).
		Model(&models.CashSale{}).
		Select(
			"seller_id, "+
				"COUNT(*) AS sale_count, "+
				"COALESCE(SUM(amount_cents), 0) AS total_cash_cents, "+
				"COALESCE(SUM(fee_cents), 0) AS total_fee_cents").
		Where("event_id = ?", eventID).
		Group("seller_id").
		Order("total_cash_cents DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) TicketCounts(ctx context.Context, eventID uuid.UUID) (*TicketCountsRow, error) {
	var row TicketCountsRow
	err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Select(
			"COUNT(*) AS total_sold, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS checked_in",
			enums.TicketStatusUsed).
		Where("event_id = ? AND status IN ?", eventID, []enums.TicketStatus{
			enums.TicketStatusValid,
			enums.TicketStatusUsed,
		}).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) CardRevenueCents(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Select("COALESCE(SUM(payments.amount_cents), 0)").
		Joins("JOIN payments ON payments.id = tickets.payment_id").
		Where("tickets.event_id = ? AND payments.status = ?", eventID, enums.PaymentStatusCompleted).
		Scan(&total).Error
	return total, err
}

func (r *repository) CheckinTimes(ctx context.Context, eventID uuid.UUID) ([]time.Time, error) {
	var times []time.Time
	err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("event_id = ? AND checked_in_at IS NOT NULL", eventID).
		Order("checked_in_at ASC").
		Pluck("checked_in_at", &times).Error
	if err != nil {
		return nil, err
	}
	return times, nil
}
