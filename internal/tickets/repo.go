package tickets

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// Repository manages persistence for events, tickets, and cash sales.
// Status transitions are conditional UPDATEs guarded by the current status;
// RowsAffected tells the caller whether its transition actually happened.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateEvent(ctx context.Context, event *models.Event) error
	FindEventByID(ctx context.Context, eventID uuid.UUID) (*models.Event, error)

	Create(ctx context.Context, ticket *models.Ticket) error
	FindByID(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
	FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Ticket, error)
	FindByTransferToken(ctx context.Context, token string) (*models.Ticket, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Ticket, error)

	MarkUsed(ctx context.Context, ticketID uuid.UUID, at time.Time) (int64, error)
	MarkCancelled(ctx context.Context, ticketID uuid.UUID, at time.Time) (int64, error)
	MarkRefunded(ctx context.Context, ticketID uuid.UUID, at time.Time) (int64, error)

	MarkListed(ctx context.Context, ticketID uuid.UUID, priceCents int) (int64, error)
	SetListingState(ctx context.Context, ticketID uuid.UUID, status enums.TicketListingStatus, priceCents *int) (int64, error)
	TransferOwnership(ctx context.Context, ticketID, newOwnerID uuid.UUID, newOwnerEmail string) (int64, error)
	SetTransferToken(ctx context.Context, ticketID uuid.UUID, token string, expiresAt time.Time) (int64, error)

	CreateCashSale(ctx context.Context, sale *models.CashSale) error
	FindCashSaleByID(ctx context.Context, saleID uuid.UUID) (*models.CashSale, error)
	MarkCashFeeCharged(ctx context.Context, saleID, feePaymentID uuid.UUID) (int64, error)
	SetCashFeeError(ctx context.Context, saleID uuid.UUID, feeError string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ticket repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEvent(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindEventByID(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).Where("id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) Create(ctx context.Context, ticket *models.Ticket) error {
	return r.db.WithContext(ctx).Create(ticket).Error
}

func (r *repository) FindByID(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	return r.findTicket(ctx, "id = ?", ticketID)
}

func (r *repository) FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Ticket, error) {
	return r.findTicket(ctx, "payment_id = ?", paymentID)
}

func (r *repository) FindByTransferToken(ctx context.Context, token string) (*models.Ticket, error) {
	return r.findTicket(ctx, "transfer_token = ?", token)
}

func (r *repository) findTicket(ctx context.Context, query string, args ...any) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).Where(query, args...).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Ticket, error) {
	var rows []models.Ticket
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkUsed(ctx context.Context, ticketID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, enums.TicketStatusValid).
		Updates(map[string]any{
			"status":        enums.TicketStatusUsed,
			"checked_in_at": at,
		})
	return result.RowsAffected, result.Error
}

// MarkCancelled only fires from a non-terminal status; a terminal row is
// untouched so the capacity release tied to this transition cannot repeat.
// A ticket with an active listing cannot go cancelled: the guard here and the
// one in MarkListed are the two halves of the same mutual exclusion, so a
// cancel racing a listing insert cannot strand an active listing on a
// cancelled ticket.
func (r *repository) MarkCancelled(ctx context.Context, ticketID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status IN ? AND listing_status <> ?", ticketID, []enums.TicketStatus{
			enums.TicketStatusValid,
			enums.TicketStatusUsed,
		}, enums.TicketListingStatusListed).
		Updates(map[string]any{
			"status":       enums.TicketStatusCancelled,
			"cancelled_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkRefunded(ctx context.Context, ticketID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status IN ?", ticketID, []enums.TicketStatus{
			enums.TicketStatusValid,
			enums.TicketStatusUsed,
		}).
		Updates(map[string]any{
			"status":      enums.TicketStatusRefunded,
			"refunded_at": at,
		})
	return result.RowsAffected, result.Error
}

// MarkListed mirrors a new active listing onto the ticket row, but only from
// (valid, unlisted). Zero rows affected means the ticket was cancelled,
// transferred, or listed between the caller's validation read and this write,
// and the surrounding transaction must roll back.
func (r *repository) MarkListed(ctx context.Context, ticketID uuid.UUID, priceCents int) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status = ? AND listing_status = ?", ticketID, enums.TicketStatusValid, enums.TicketListingStatusNone).
		Updates(map[string]any{
			"listing_status":      enums.TicketListingStatusListed,
			"listing_price_cents": priceCents,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) SetListingState(ctx context.Context, ticketID uuid.UUID, status enums.TicketListingStatus, priceCents *int) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ?", ticketID).
		Updates(map[string]any{
			"listing_status":      status,
			"listing_price_cents": priceCents,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) TransferOwnership(ctx context.Context, ticketID, newOwnerID uuid.UUID, newOwnerEmail string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, enums.TicketStatusValid).
		Updates(map[string]any{
			"owner_id":                  newOwnerID,
			"owner_email":               newOwnerEmail,
			"transfer_token":            nil,
			"transfer_token_expires_at": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) SetTransferToken(ctx context.Context, ticketID uuid.UUID, token string, expiresAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status = ? AND listing_status = ?", ticketID, enums.TicketStatusValid, enums.TicketListingStatusNone).
		Updates(map[string]any{
			"transfer_token":            token,
			"transfer_token_expires_at": expiresAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) CreateCashSale(ctx context.Context, sale *models.CashSale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

func (r *repository) FindCashSaleByID(ctx context.Context, saleID uuid.UUID) (*models.CashSale, error) {
	var sale models.CashSale
	err := r.db.WithContext(ctx).Where("id = ?", saleID).First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

func (r *repository) MarkCashFeeCharged(ctx context.Context, saleID, feePaymentID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CashSale{}).
		Where("id = ? AND NOT fee_charged", saleID).
		Updates(map[string]any{
			"fee_charged":    true,
			"fee_error":      nil,
			"fee_payment_id": feePaymentID,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) SetCashFeeError(ctx context.Context, saleID uuid.UUID, feeError string) error {
	return r.db.WithContext(ctx).
		Model(&models.CashSale{}).
		Where("id = ? AND NOT fee_charged", saleID).
		Update("fee_error", feeError).Error
}
