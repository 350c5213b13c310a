package tickets

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
)

func seedTicketType(t *testing.T, db *gorm.DB, maxQuantity *int, soldCount int, active bool) *models.TicketType {
	t.Helper()

	ticketType := &models.TicketType{
		ID:          uuid.New(),
		EventID:     uuid.New(),
		Name:        "General Admission",
		PriceCents:  5000,
		MaxQuantity: maxQuantity,
		SoldCount:   soldCount,
		IsActive:    active,
	}
	require.NoError(t, db.Create(ticketType).Error)
	return ticketType
}

func TestCapacityReserveSlotIncrements(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewCapacityRepository(db)
	ctx := context.Background()

	ticketType := seedTicketType(t, db, intPtr(2), 0, true)

	require.NoError(t, repo.ReserveSlot(ctx, ticketType.ID))
	require.NoError(t, repo.ReserveSlot(ctx, ticketType.ID))

	stored, err := repo.FindTypeByID(ctx, ticketType.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.SoldCount)
}

func TestCapacityReserveSlotSoldOut(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewCapacityRepository(db)
	ctx := context.Background()

	ticketType := seedTicketType(t, db, intPtr(1), 1, true)

	err := repo.ReserveSlot(ctx, ticketType.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeCapacityExceeded, typed.Code())

	stored, err := repo.FindTypeByID(ctx, ticketType.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SoldCount, "a refused reserve must not move the counter")
}

func TestCapacityReserveSlotConcurrentSingleWinner(t *testing.T) {
	db := setupTicketsTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	repo := NewCapacityRepository(db)
	ctx := context.Background()

	ticketType := seedTicketType(t, db, intPtr(1), 0, true)

	const buyers = 8
	results := make(chan error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.ReserveSlot(ctx, ticketType.ID)
		}()
	}
	wg.Wait()
	close(results)

	var won, refused int
	for err := range results {
		if err == nil {
			won++
			continue
		}
		typed := pkgerrors.As(err)
		require.NotNil(t, typed, "unexpected error: %v", err)
		require.Equal(t, pkgerrors.CodeCapacityExceeded, typed.Code())
		refused++
	}
	assert.Equal(t, 1, won, "exactly one buyer gets the last slot")
	assert.Equal(t, buyers-1, refused)

	stored, err := repo.FindTypeByID(ctx, ticketType.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SoldCount)
}

func TestCapacityReserveSlotInactive(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewCapacityRepository(db)
	ctx := context.Background()

	ticketType := seedTicketType(t, db, nil, 0, false)

	err := repo.ReserveSlot(ctx, ticketType.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInvalidState, typed.Code())
}

func TestCapacityReserveSlotUnknownTier(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewCapacityRepository(db)

	err := repo.ReserveSlot(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestCapacityUnlimitedTierNeverSellsOut(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewCapacityRepository(db)
	ctx := context.Background()

	ticketType := seedTicketType(t, db, nil, 0, true)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.ReserveSlot(ctx, ticketType.ID))
	}

	availability, err := repo.Availability(ctx, ticketType.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, availability.Sold)
	assert.Nil(t, availability.Max)
	assert.Nil(t, availability.Remaining)
}

func TestCapacityReleaseSlotFloorsAtZero(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewCapacityRepository(db)
	ctx := context.Background()

	ticketType := seedTicketType(t, db, intPtr(5), 1, true)

	require.NoError(t, repo.ReleaseSlot(ctx, ticketType.ID))
	require.NoError(t, repo.ReleaseSlot(ctx, ticketType.ID))

	stored, err := repo.FindTypeByID(ctx, ticketType.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.SoldCount)
}

func TestCapacityAvailabilityRemaining(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewCapacityRepository(db)
	ctx := context.Background()

	ticketType := seedTicketType(t, db, intPtr(10), 4, true)

	availability, err := repo.Availability(ctx, ticketType.ID)
	require.NoError(t, err)
	require.NotNil(t, availability.Remaining)
	assert.Equal(t, 6, *availability.Remaining)
	assert.Equal(t, 4, availability.Sold)
}

func TestCapacitySoldCountMismatches(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewCapacityRepository(db)
	ctx := context.Background()

	consistent := seedTicketType(t, db, intPtr(10), 1, true)
	drifted := seedTicketType(t, db, intPtr(10), 3, true)

	seedTicket(t, db, consistent, enums.TicketStatusValid)
	seedTicket(t, db, drifted, enums.TicketStatusValid)
	// Cancelled tickets do not count as live.
	seedTicket(t, db, drifted, enums.TicketStatusCancelled)

	mismatches, err := repo.SoldCountMismatches(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, drifted.ID, mismatches[0].TicketTypeID)
	assert.Equal(t, 3, mismatches[0].SoldCount)
	assert.Equal(t, 1, mismatches[0].ActualCount)
}
