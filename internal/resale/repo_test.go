package resale

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
)

func setupResaleTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	tickets := `
CREATE TABLE IF NOT EXISTS tickets (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  ticket_type_id TEXT,
  owner_id TEXT NOT NULL,
  owner_email TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'valid',
  mode TEXT NOT NULL DEFAULT 'standard',
  listing_status TEXT NOT NULL DEFAULT 'none',
  listing_price_cents INTEGER,
  payment_method TEXT NOT NULL DEFAULT 'card',
  delivery_method TEXT NOT NULL DEFAULT 'digital',
  payment_id TEXT,
  transfer_token TEXT,
  transfer_token_expires_at DATETIME,
  checked_in_at DATETIME,
  cancelled_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	listings := `
CREATE TABLE IF NOT EXISTS resale_listings (
  id TEXT PRIMARY KEY,
  ticket_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  sold_payment_id TEXT,
  refund_flagged INTEGER NOT NULL DEFAULT 0,
  cancelled_at DATETIME,
  sold_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	index := `
CREATE UNIQUE INDEX IF NOT EXISTS ux_resale_listings_active_ticket
  ON resale_listings (ticket_id) WHERE status = 'active';`
	require.NoError(t, conn.Exec(tickets).Error)
	require.NoError(t, conn.Exec(listings).Error)
	require.NoError(t, conn.Exec(index).Error)
	require.NoError(t, conn.Exec(`DELETE FROM tickets`).Error)
	require.NoError(t, conn.Exec(`DELETE FROM resale_listings`).Error)
	return conn
}

func seedListedTicket(t *testing.T, conn *gorm.DB, eventID uuid.UUID, listingStatus enums.TicketListingStatus) *models.Ticket {
	t.Helper()

	ticket := &models.Ticket{
		ID:             uuid.New(),
		EventID:        eventID,
		OwnerID:        uuid.New(),
		OwnerEmail:     "seller@example.com",
		Status:         enums.TicketStatusValid,
		Mode:           enums.TicketModeStandard,
		ListingStatus:  listingStatus,
		PaymentMethod:  enums.PaymentMethodCard,
		DeliveryMethod: enums.DeliveryMethodDigital,
	}
	require.NoError(t, conn.Create(ticket).Error)
	return ticket
}

func seedActiveListing(t *testing.T, repo Repository, ticketID uuid.UUID) *models.ResaleListing {
	t.Helper()

	listing := &models.ResaleListing{
		ID:         uuid.New(),
		TicketID:   ticketID,
		SellerID:   uuid.New(),
		PriceCents: 8000,
		Status:     enums.ListingStatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), listing))
	return listing
}

func TestResaleRepoActiveUniquePerTicket(t *testing.T) {
	conn := setupResaleTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	ticket := seedListedTicket(t, conn, uuid.New(), enums.TicketListingStatusListed)
	seedActiveListing(t, repo, ticket.ID)

	duplicate := &models.ResaleListing{
		ID:         uuid.New(),
		TicketID:   ticket.ID,
		SellerID:   uuid.New(),
		PriceCents: 9000,
		Status:     enums.ListingStatusActive,
	}
	err := repo.Create(ctx, duplicate)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err), "expected a unique violation, got %v", err)

	// A closed listing does not block a new active one for the same ticket.
	first, err := repo.FindActiveByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	affected, err := repo.MarkCancelled(ctx, first.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	relist := &models.ResaleListing{
		ID:         uuid.New(),
		TicketID:   ticket.ID,
		SellerID:   uuid.New(),
		PriceCents: 7000,
		Status:     enums.ListingStatusActive,
	}
	require.NoError(t, repo.Create(ctx, relist))
}

func TestResaleRepoConcurrentCreateSingleWinner(t *testing.T) {
	conn := setupResaleTestDB(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	repo := NewRepository(conn)
	ctx := context.Background()

	ticket := seedListedTicket(t, conn, uuid.New(), enums.TicketListingStatusNone)

	const sellers = 2
	results := make(chan error, sellers)
	var wg sync.WaitGroup
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.Create(ctx, &models.ResaleListing{
				ID:         uuid.New(),
				TicketID:   ticket.ID,
				SellerID:   uuid.New(),
				PriceCents: 8000,
				Status:     enums.ListingStatusActive,
			})
		}()
	}
	wg.Wait()
	close(results)

	var won, blocked int
	for err := range results {
		if err == nil {
			won++
			continue
		}
		require.True(t, db.IsUniqueViolation(err), "expected a unique violation, got %v", err)
		blocked++
	}
	assert.Equal(t, 1, won, "the partial unique index admits exactly one active listing")
	assert.Equal(t, 1, blocked)

	active, err := repo.FindActiveByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
}

// raceTicketRepo defers to the real ticket repository but lets a test land a
// competing write right after the service's validation read.
type raceTicketRepo struct {
	tickets.Repository
	afterFind func()
}

func (r *raceTicketRepo) FindByID(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	ticket, err := r.Repository.FindByID(ctx, ticketID)
	if err == nil && r.afterFind != nil {
		hook := r.afterFind
		r.afterFind = nil
		hook()
	}
	return ticket, err
}

func TestCreateListingRollsBackWhenCancelWinsRace(t *testing.T) {
	conn := setupResaleTestDB(t)
	repo := NewRepository(conn)
	realTickets := tickets.NewRepository(conn)
	ticketRepo := &raceTicketRepo{Repository: realTickets}
	ctx := context.Background()

	svc, err := NewService(ServiceParams{
		DB:            db.NewFromConn(conn),
		Repo:          repo,
		TicketRepo:    ticketRepo,
		Payments:      newStubPayments(testFeeSchedule(t)),
		Notifications: &stubNotifications{},
		Logger:        newTestLogger(),
	})
	require.NoError(t, err)

	seller := uuid.New()
	ticket := &models.Ticket{
		ID:             uuid.New(),
		EventID:        uuid.New(),
		OwnerID:        seller,
		OwnerEmail:     "seller@example.com",
		Status:         enums.TicketStatusValid,
		Mode:           enums.TicketModeStandard,
		ListingStatus:  enums.TicketListingStatusNone,
		PaymentMethod:  enums.PaymentMethodCard,
		DeliveryMethod: enums.DeliveryMethodDigital,
	}
	require.NoError(t, conn.Create(ticket).Error)

	ticketRepo.afterFind = func() {
		affected, err := realTickets.MarkCancelled(ctx, ticket.ID, time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, int64(1), affected)
	}

	_, err = svc.CreateListing(ctx, CreateListingInput{
		TicketID:   ticket.ID,
		SellerID:   seller,
		PriceCents: 8000,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInvalidState, typed.Code())

	// The listing insert rolled back with the refused mirror write.
	active, err := repo.FindActiveByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	stored, err := realTickets.FindByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusCancelled, stored.Status)
	assert.Equal(t, enums.TicketListingStatusNone, stored.ListingStatus)
	assert.Nil(t, stored.ListingPriceCents)
}

func TestResaleRepoMarkSoldActiveOnly(t *testing.T) {
	conn := setupResaleTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	ticket := seedListedTicket(t, conn, uuid.New(), enums.TicketListingStatusListed)
	listing := seedActiveListing(t, repo, ticket.ID)

	paymentID := uuid.New()
	affected, err := repo.MarkSold(ctx, listing.ID, paymentID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	stored, err := repo.FindByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusSold, stored.Status)
	require.NotNil(t, stored.SoldPaymentID)
	assert.Equal(t, paymentID, *stored.SoldPaymentID)
	assert.NotNil(t, stored.SoldAt)

	affected, err = repo.MarkSold(ctx, listing.ID, uuid.New(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = repo.MarkCancelled(ctx, listing.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, affected, "sold listings cannot be cancelled")
}

func TestResaleRepoFlagRefundSoldOnly(t *testing.T) {
	conn := setupResaleTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	ticket := seedListedTicket(t, conn, uuid.New(), enums.TicketListingStatusListed)
	listing := seedActiveListing(t, repo, ticket.ID)

	affected, err := repo.FlagRefund(ctx, listing.ID)
	require.NoError(t, err)
	assert.Zero(t, affected, "active listings cannot be refund-flagged")

	_, err = repo.MarkSold(ctx, listing.ID, uuid.New(), time.Now().UTC())
	require.NoError(t, err)

	affected, err = repo.FlagRefund(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	stored, err := repo.FindByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.True(t, stored.RefundFlagged)
}

func TestResaleRepoListActiveByEvent(t *testing.T) {
	conn := setupResaleTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	eventID := uuid.New()
	inEvent := seedListedTicket(t, conn, eventID, enums.TicketListingStatusListed)
	otherEvent := seedListedTicket(t, conn, uuid.New(), enums.TicketListingStatusListed)
	closed := seedListedTicket(t, conn, eventID, enums.TicketListingStatusNone)

	keep := seedActiveListing(t, repo, inEvent.ID)
	seedActiveListing(t, repo, otherEvent.ID)
	cancelled := seedActiveListing(t, repo, closed.ID)
	_, err := repo.MarkCancelled(ctx, cancelled.ID, time.Now().UTC())
	require.NoError(t, err)

	listings, err := repo.ListActiveByEvent(ctx, eventID, 10)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, keep.ID, listings[0].ID)
}

func TestResaleRepoListingStateMismatches(t *testing.T) {
	conn := setupResaleTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	eventID := uuid.New()

	// Consistent pair: marked listed, active listing present.
	consistent := seedListedTicket(t, conn, eventID, enums.TicketListingStatusListed)
	seedActiveListing(t, repo, consistent.ID)

	// Marked listed with no listing behind it.
	orphanMark := seedListedTicket(t, conn, eventID, enums.TicketListingStatusListed)

	// Active listing behind a ticket that lost its mark.
	orphanListing := seedListedTicket(t, conn, eventID, enums.TicketListingStatusNone)
	seedActiveListing(t, repo, orphanListing.ID)

	mismatches, err := repo.ListingStateMismatches(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 2)

	byTicket := map[uuid.UUID]ListingStateMismatch{}
	for _, m := range mismatches {
		byTicket[m.TicketID] = m
	}
	mark, ok := byTicket[orphanMark.ID]
	require.True(t, ok)
	assert.False(t, mark.HasActiveListing)
	assert.Equal(t, "listed", mark.ListingStatus)

	listing, ok := byTicket[orphanListing.ID]
	require.True(t, ok)
	assert.True(t, listing.HasActiveListing)
	assert.Equal(t, "none", listing.ListingStatus)
}
