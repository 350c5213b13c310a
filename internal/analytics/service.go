package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/internal/staff"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// CashSummary is the per-event cash ledger rollup.
type CashSummary struct {
	EventID            uuid.UUID    `json:"event_id"`
	TotalCashCents     int64        `json:"total_cash_cents"`
	TotalFeeCents      int64        `json:"total_fee_cents"`
	FeesCollectedCents int64        `json:"fees_collected_cents"`
	FeesOutstanding    int64        `json:"fees_outstanding_cents"`
	SaleCount          int64        `json:"sale_count"`
	FeeChargedCount    int64        `json:"fee_charged_count"`
	BySeller           []SellerCash `json:"by_seller"`
}

// SellerCash is one seller's slice of the cash ledger.
type SellerCash struct {
	SellerID       uuid.UUID `json:"seller_id"`
	SaleCount      int64     `json:"sale_count"`
	TotalCashCents int64     `json:"total_cash_cents"`
	TotalFeeCents  int64     `json:"total_fee_cents"`
}

// HourlyCheckins is one hour bucket of the admission histogram.
type HourlyCheckins struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// EventStats is the per-event sales and admission rollup.
type EventStats struct {
	EventID        uuid.UUID        `json:"event_id"`
	TotalSold      int64            `json:"total_sold"`
	CheckedIn      int64            `json:"checked_in"`
	RevenueCents   int64            `json:"revenue_cents"`
	CashCents      int64            `json:"cash_cents"`
	HourlyCheckins []HourlyCheckins `json:"hourly_checkins"`
}

// Service answers organizer-facing reporting queries.
type Service interface {
	EventCashSummary(ctx context.Context, eventID, callerID uuid.UUID) (*CashSummary, error)
	EventStats(ctx context.Context, eventID, callerID uuid.UUID) (*EventStats, error)
}

type service struct {
	repo  Repository
	staff staff.Service
	logg  *logger.Logger
}

// ServiceParams configure the analytics service.
type ServiceParams struct {
	Repo   Repository
	Staff  staff.Service
	Logger *logger.Logger
}

// NewService wires the analytics service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("analytics repository required")
	}
	if params.Staff == nil {
		return nil, fmt.Errorf("analytics staff service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("analytics logger required")
	}
	return &service{
		repo:  params.Repo,
		staff: params.Staff,
		logg:  params.Logger,
	}, nil
}

// EventCashSummary rolls up the event's cash sales: how much cash staff
// collected, what the platform is owed, and how much of it has actually been
// charged, broken down per seller.
func (s *service) EventCashSummary(ctx context.Context, eventID, callerID uuid.UUID) (*CashSummary, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if err := s.staff.RequireRole(ctx, eventID, callerID); err != nil {
		return nil, err
	}

	summary, err := s.repo.CashSummary(ctx, eventID)
	if err != nil {
		return nil, err
	}
	sellers, err := s.repo.CashBySeller(ctx, eventID)
	if err != nil {
		return nil, err
	}

	result := &CashSummary{
		EventID:            eventID,
		TotalCashCents:     summary.TotalCashCents,
		TotalFeeCents:      summary.TotalFeeCents,
		FeesCollectedCents: summary.FeesCollectedCents,
		FeesOutstanding:    summary.TotalFeeCents - summary.FeesCollectedCents,
		SaleCount:          summary.SaleCount,
		FeeChargedCount:    summary.FeeChargedCount,
		BySeller:           make([]SellerCash, 0, len(sellers)),
	}
	for _, row := range sellers {
		result.BySeller = append(result.BySeller, SellerCash{
			SellerID:       row.SellerID,
			SaleCount:      row.SaleCount,
			TotalCashCents: row.TotalCashCents,
			TotalFeeCents:  row.TotalFeeCents,
		})
	}
	return result, nil
}

// EventStats rolls up sales and admission for one event, including the
// hour-by-hour check-in histogram.
func (s *service) EventStats(ctx context.Context, eventID, callerID uuid.UUID) (*EventStats, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if err := s.staff.RequireRole(ctx, eventID, callerID); err != nil {
		return nil, err
	}

	counts, err := s.repo.TicketCounts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	revenue, err := s.repo.CardRevenueCents(ctx, eventID)
	if err != nil {
		return nil, err
	}
	cash, err := s.repo.CashSummary(ctx, eventID)
	if err != nil {
		return nil, err
	}
	checkins, err := s.repo.CheckinTimes(ctx, eventID)
	if err != nil {
		return nil, err
	}

	return &EventStats{
		EventID:        eventID,
		TotalSold:      counts.TotalSold,
		CheckedIn:      counts.CheckedIn,
		RevenueCents:   revenue + cash.TotalCashCents,
		CashCents:      cash.TotalCashCents,
		HourlyCheckins: bucketByHour(checkins),
	}, nil
}

// bucketByHour folds raw check-in timestamps into hour buckets, sorted
// chronologically. Empty hours are omitted.
func bucketByHour(times []time.Time) []HourlyCheckins {
	buckets := make(map[time.Time]int64, len(times))
	for _, t := range times {
		buckets[t.UTC().Truncate(time.Hour)]++
	}
	result := make([]HourlyCheckins, 0, len(buckets))
	for hour, count := range buckets {
		result = append(result, HourlyCheckins{Hour: hour, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Hour.Before(result[j].Hour)
	})
	return result
}
