package offers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

func setupOffersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS ticket_offers (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  ticket_type_id TEXT,
  organizer_id TEXT NOT NULL,
  recipient_email TEXT NOT NULL,
  recipient_id TEXT,
  price_cents INTEGER NOT NULL DEFAULT 0,
  mode TEXT NOT NULL DEFAULT 'private',
  status TEXT NOT NULL DEFAULT 'pending',
  expires_at DATETIME NOT NULL,
  ticket_id TEXT,
  resolved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	require.NoError(t, conn.Exec(`DELETE FROM ticket_offers`).Error)
	return conn
}

func seedOffer(t *testing.T, conn *gorm.DB, status enums.OfferStatus, expiresAt time.Time) *models.TicketOffer {
	t.Helper()

	offer := &models.TicketOffer{
		ID:             uuid.New(),
		EventID:        uuid.New(),
		OrganizerID:    uuid.New(),
		RecipientEmail: "guest@example.com",
		Mode:           enums.TicketModePrivate,
		Status:         status,
		ExpiresAt:      expiresAt,
	}
	require.NoError(t, conn.Create(offer).Error)
	return offer
}

func TestOfferRepoAcceptGuards(t *testing.T) {
	conn := setupOffersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	offer := seedOffer(t, conn, enums.OfferStatusPending, now.Add(time.Hour))
	ticketID := uuid.New()

	affected, err := repo.Accept(ctx, offer.ID, ticketID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	stored, err := repo.FindByID(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusAccepted, stored.Status)
	require.NotNil(t, stored.TicketID)
	assert.Equal(t, ticketID, *stored.TicketID)
	assert.NotNil(t, stored.ResolvedAt)

	// Resolved offers refuse a second accept.
	affected, err = repo.Accept(ctx, offer.ID, uuid.New(), now)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestOfferRepoAcceptRechecksDeadline(t *testing.T) {
	conn := setupOffersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	offer := seedOffer(t, conn, enums.OfferStatusPending, now.Add(-time.Minute))

	affected, err := repo.Accept(ctx, offer.ID, uuid.New(), now)
	require.NoError(t, err)
	assert.Zero(t, affected, "a pending row past its deadline cannot be accepted")

	stored, err := repo.FindByID(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusPending, stored.Status)
}

func TestOfferRepoLinkRecipientOnlyUnlinkedPending(t *testing.T) {
	conn := setupOffersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	offer := seedOffer(t, conn, enums.OfferStatusPending, now.Add(time.Hour))
	userID := uuid.New()

	affected, err := repo.LinkRecipient(ctx, offer.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// Relinking an already linked offer is a no-op.
	affected, err = repo.LinkRecipient(ctx, offer.ID, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, affected)

	stored, err := repo.FindByID(ctx, offer.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RecipientID)
	assert.Equal(t, userID, *stored.RecipientID)

	declined := seedOffer(t, conn, enums.OfferStatusDeclined, now.Add(time.Hour))
	affected, err = repo.LinkRecipient(ctx, declined.ID, userID)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestOfferRepoPendingUnlinkedByEmail(t *testing.T) {
	conn := setupOffersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	match := seedOffer(t, conn, enums.OfferStatusPending, now.Add(time.Hour))
	linked := seedOffer(t, conn, enums.OfferStatusPending, now.Add(time.Hour))
	_, err := repo.LinkRecipient(ctx, linked.ID, uuid.New())
	require.NoError(t, err)
	seedOffer(t, conn, enums.OfferStatusCancelled, now.Add(time.Hour))

	pending, err := repo.PendingUnlinkedByEmail(ctx, "guest@example.com")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, match.ID, pending[0].ID)
}

func TestOfferRepoResolveTransitionsPendingOnly(t *testing.T) {
	conn := setupOffersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	offer := seedOffer(t, conn, enums.OfferStatusPending, now.Add(time.Hour))

	affected, err := repo.MarkDeclined(ctx, offer.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.MarkCancelled(ctx, offer.ID, now)
	require.NoError(t, err)
	assert.Zero(t, affected, "declined offers cannot be cancelled")
}

func TestOfferRepoSweepExpiredIdempotent(t *testing.T) {
	conn := setupOffersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := seedOffer(t, conn, enums.OfferStatusPending, now.Add(-time.Minute))
	fresh := seedOffer(t, conn, enums.OfferStatusPending, now.Add(time.Hour))

	swept, err := repo.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	stored, err := repo.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusExpired, stored.Status)

	stored, err = repo.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusPending, stored.Status)

	swept, err = repo.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, swept)
}
