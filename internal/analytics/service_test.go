package analytics

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/internal/staff"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

type stubAnalyticsRepo struct {
	cash     CashSummaryRow
	sellers  []SellerCashRow
	counts   TicketCountsRow
	revenue  int64
	checkins []time.Time
}

func (r *stubAnalyticsRepo) CashSummary(ctx context.Context, eventID uuid.UUID) (*CashSummaryRow, error) {
	row := r.cash
	return &row, nil
}

func (r *stubAnalyticsRepo) CashBySeller(ctx context.Context, eventID uuid.UUID) ([]SellerCashRow, error) {
	return r.sellers, nil
}

func (r *stubAnalyticsRepo) TicketCounts(ctx context.Context, eventID uuid.UUID) (*TicketCountsRow, error) {
	row := r.counts
	return &row, nil
}

func (r *stubAnalyticsRepo) CardRevenueCents(ctx context.Context, eventID uuid.UUID) (int64, error) {
	return r.revenue, nil
}

func (r *stubAnalyticsRepo) CheckinTimes(ctx context.Context, eventID uuid.UUID) ([]time.Time, error) {
	return r.checkins, nil
}

type stubStaff struct {
	allowed map[uuid.UUID]bool
}

func (s *stubStaff) Grant(ctx context.Context, input staff.GrantInput) (*models.EventStaff, error) {
	return nil, nil
}

func (s *stubStaff) Revoke(ctx context.Context, eventID, userID, callerID uuid.UUID) error {
	return nil
}

func (s *stubStaff) HasRole(ctx context.Context, eventID, userID uuid.UUID, roles ...enums.StaffRole) (bool, error) {
	return s.allowed[userID], nil
}

func (s *stubStaff) RequireRole(ctx context.Context, eventID, userID uuid.UUID, roles ...enums.StaffRole) error {
	if !s.allowed[userID] {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	return nil
}

func (s *stubStaff) ListByEvent(ctx context.Context, eventID, callerID uuid.UUID) ([]models.EventStaff, error) {
	return nil, nil
}

func (s *stubStaff) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.EventStaff, error) {
	return nil, nil
}

func newAnalyticsService(t *testing.T, repo Repository, staffSvc staff.Service) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Staff:  staffSvc,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestEventCashSummaryComputesOutstanding(t *testing.T) {
	staffID := uuid.New()
	sellerA := uuid.New()
	repo := &stubAnalyticsRepo{
		cash: CashSummaryRow{
			TotalCashCents:     12000,
			TotalFeeCents:      600,
			FeesCollectedCents: 250,
			SaleCount:          3,
			FeeChargedCount:    1,
		},
		sellers: []SellerCashRow{
			{SellerID: sellerA, SaleCount: 2, TotalCashCents: 9000, TotalFeeCents: 450},
			{SellerID: uuid.New(), SaleCount: 1, TotalCashCents: 3000, TotalFeeCents: 150},
		},
	}
	svc := newAnalyticsService(t, repo, &stubStaff{allowed: map[uuid.UUID]bool{staffID: true}})

	summary, err := svc.EventCashSummary(context.Background(), uuid.New(), staffID)
	if err != nil {
		t.Fatalf("cash summary: %v", err)
	}
	if summary.FeesOutstanding != 350 {
		t.Fatalf("expected 350 cents outstanding, got %d", summary.FeesOutstanding)
	}
	if len(summary.BySeller) != 2 || summary.BySeller[0].SellerID != sellerA {
		t.Fatalf("expected the per-seller breakdown preserved, got %+v", summary.BySeller)
	}
}

func TestEventCashSummaryRequiresStaffRole(t *testing.T) {
	svc := newAnalyticsService(t, &stubAnalyticsRepo{}, &stubStaff{allowed: map[uuid.UUID]bool{}})

	_, err := svc.EventCashSummary(context.Background(), uuid.New(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	_, err = svc.EventCashSummary(context.Background(), uuid.Nil, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for a missing event id, got %v", err)
	}
}

func TestEventStatsCombinesCardAndCashRevenue(t *testing.T) {
	staffID := uuid.New()
	repo := &stubAnalyticsRepo{
		counts:  TicketCountsRow{TotalSold: 40, CheckedIn: 25},
		revenue: 80000,
		cash:    CashSummaryRow{TotalCashCents: 15000},
	}
	svc := newAnalyticsService(t, repo, &stubStaff{allowed: map[uuid.UUID]bool{staffID: true}})

	stats, err := svc.EventStats(context.Background(), uuid.New(), staffID)
	if err != nil {
		t.Fatalf("event stats: %v", err)
	}
	if stats.RevenueCents != 95000 {
		t.Fatalf("expected card plus cash revenue, got %d", stats.RevenueCents)
	}
	if stats.TotalSold != 40 || stats.CheckedIn != 25 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
}

func TestBucketByHour(t *testing.T) {
	doors := time.Date(2026, 8, 1, 19, 0, 0, 0, time.UTC)
	times := []time.Time{
		doors.Add(5 * time.Minute),
		doors.Add(40 * time.Minute),
		doors.Add(90 * time.Minute),
		doors.Add(-30 * time.Minute),
	}

	buckets := bucketByHour(times)
	if len(buckets) != 3 {
		t.Fatalf("expected three hour buckets, got %d", len(buckets))
	}
	if !buckets[0].Hour.Before(buckets[1].Hour) || !buckets[1].Hour.Before(buckets[2].Hour) {
		t.Fatal("buckets must be chronological")
	}
	if buckets[1].Hour != doors || buckets[1].Count != 2 {
		t.Fatalf("expected two check-ins in the doors hour, got %+v", buckets[1])
	}
}

func TestBucketByHourEmpty(t *testing.T) {
	if buckets := bucketByHour(nil); len(buckets) != 0 {
		t.Fatalf("expected no buckets, got %d", len(buckets))
	}
}
