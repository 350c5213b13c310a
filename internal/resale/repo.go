package resale

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// Repository manages persistence for resale listings. The schema carries a
// partial unique index over (ticket_id) where status = 'active', so Create
// is the racing point: concurrent inserts for the same ticket surface a
// unique violation to all but one writer.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.ResaleListing) error
	FindByID(ctx context.Context, listingID uuid.UUID) (*models.ResaleListing, error)
	FindActiveByTicket(ctx context.Context, ticketID uuid.UUID) (*models.ResaleListing, error)
	ListActiveByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.ResaleListing, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.ResaleListing, error)
	MarkSold(ctx context.Context, listingID, paymentID uuid.UUID, at time.Time) (int64, error)
	MarkCancelled(ctx context.Context, listingID uuid.UUID, at time.Time) (int64, error)
	FlagRefund(ctx context.Context, listingID uuid.UUID) (int64, error)
	ListingStateMismatches(ctx context.Context) ([]ListingStateMismatch, error)
}

// ListingStateMismatch is a ticket whose denormalized listing state disagrees
// with the listing ledger.
type ListingStateMismatch struct {
	TicketID         uuid.UUID
	ListingStatus    string
	HasActiveListing bool
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a resale listing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, listing *models.ResaleListing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, listingID uuid.UUID) (*models.ResaleListing, error) {
	var listing models.ResaleListing
	err := r.db.WithContext(ctx).Where("id = ?", listingID).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}

func (r *repository) FindActiveByTicket(ctx context.Context, ticketID uuid.UUID) (*models.ResaleListing, error) {
	var listing models.ResaleListing
	err := r.db.WithContext(ctx).
		Where("ticket_id = ? AND status = ?", ticketID, enums.ListingStatusActive).
		First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}

func (r *repository) ListActiveByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.ResaleListing, error) {
	var listings []models.ResaleListing
	if err := r.db.WithContext(ctx).
		Joins("JOIN tickets ON tickets.id = resale_listings.ticket_id").
		Where("tickets.event_id = ? AND resale_listings.status = ?", eventID, enums.ListingStatusActive).
		Order("resale_listings.created_at ASC").
		Limit(limit).
		Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.ResaleListing, error) {
	var listings []models.ResaleListing
	if err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *repository) MarkSold(ctx context.Context, listingID, paymentID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ResaleListing{}).
		Where("id = ? AND status = ?", listingID, enums.ListingStatusActive).
		Updates(map[string]any{
			"status":          enums.ListingStatusSold,
			"sold_payment_id": paymentID,
			"sold_at":         at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkCancelled(ctx context.Context, listingID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ResaleListing{}).
		Where("id = ? AND status = ?", listingID, enums.ListingStatusActive).
		Updates(map[string]any{
			"status":       enums.ListingStatusCancelled,
			"cancelled_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) FlagRefund(ctx context.Context, listingID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ResaleListing{}).
		Where("id = ? AND status = ?", listingID, enums.ListingStatusSold).
		Update("refund_flagged", true)
	return result.RowsAffected, result.Error
}

// ListingStateMismatches reports every ticket whose denormalized listing
// state disagrees with the listing ledger: marked listed with no active
// listing, or carrying an active listing without the mark.
func (r *repository) ListingStateMismatches(ctx context.Context) ([]ListingStateMismatch, error) {
	var rows []ListingStateMismatch
	err := r.db.WithContext(ctx).Raw(`
		SELECT t.id AS ticket_id,
		       t.listing_status AS listing_status,
		       CASE WHEN l.id IS NULL THEN FALSE ELSE TRUE END AS has_active_listing
		FROM tickets t
		LEFT JOIN resale_listings l ON l.ticket_id = t.id AND l.status = 'active'
		WHERE (t.listing_status = 'listed' AND l.id IS NULL)
		   OR (t.listing_status <> 'listed' AND l.id IS NOT NULL)`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
