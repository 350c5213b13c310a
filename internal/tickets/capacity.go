package tickets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
)

// Availability is the capacity read model for one tier. Remaining is nil
// when the tier is unlimited.
type Availability struct {
	Max       *int `json:"max"`
	Sold      int  `json:"sold"`
	Remaining *int `json:"remaining"`
}

// SoldCountMismatch pairs a tier's stored counter with a recount from the
// ticket rows it should reflect.
type SoldCountMismatch struct {
	TicketTypeID uuid.UUID
	SoldCount    int
	ActualCount  int
}

// CapacityRepository is the ticket-type capacity ledger. Reserve and release
// are single guarded UPDATEs so the check and the increment are one atomic
// read-modify-write on the storage engine.
type CapacityRepository interface {
	WithTx(tx *gorm.DB) CapacityRepository
	CreateType(ctx context.Context, ticketType *models.TicketType) error
	FindTypeByID(ctx context.Context, ticketTypeID uuid.UUID) (*models.TicketType, error)
	ListTypesByEvent(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error)
	ReserveSlot(ctx context.Context, ticketTypeID uuid.UUID) error
	ReleaseSlot(ctx context.Context, ticketTypeID uuid.UUID) error
	Availability(ctx context.Context, ticketTypeID uuid.UUID) (*Availability, error)
	SoldCountMismatches(ctx context.Context) ([]SoldCountMismatch, error)
}

type capacityRepository struct {
	db *gorm.DB
}

// NewCapacityRepository returns a capacity ledger bound to the provided database.
func NewCapacityRepository(db *gorm.DB) CapacityRepository {
	return &capacityRepository{db: db}
}

func (r *capacityRepository) WithTx(tx *gorm.DB) CapacityRepository {
	if tx == nil {
		return r
	}
	return &capacityRepository{db: tx}
}

func (r *capacityRepository) CreateType(ctx context.Context, ticketType *models.TicketType) error {
	return r.db.WithContext(ctx).Create(ticketType).Error
}

func (r *capacityRepository) FindTypeByID(ctx context.Context, ticketTypeID uuid.UUID) (*models.TicketType, error) {
	var ticketType models.TicketType
	err := r.db.WithContext(ctx).Where("id = ?", ticketTypeID).First(&ticketType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticketType, nil
}

func (r *capacityRepository) ListTypesByEvent(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error) {
	var ticketTypes []models.TicketType
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&ticketTypes).Error; err != nil {
		return nil, err
	}
	return ticketTypes, nil
}

// ReserveSlot increments sold_count only while capacity remains. The caller
// runs it in the same transaction that creates the ticket row, so a failed
// reserve fails the whole mint.
func (r *capacityRepository) ReserveSlot(ctx context.Context, ticketTypeID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.TicketType{}).
		Where("id = ? AND is_active AND (max_quantity IS NULL OR sold_count < max_quantity)", ticketTypeID).
		Update("sold_count", gorm.Expr("sold_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	ticketType, err := r.FindTypeByID(ctx, ticketTypeID)
	if err != nil {
		return err
	}
	if ticketType == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "ticket type not found")
	}
	if !ticketType.IsActive {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "ticket type is not on sale")
	}
	return pkgerrors.New(pkgerrors.CodeCapacityExceeded, fmt.Sprintf("ticket type %s is sold out", ticketTypeID))
}

// ReleaseSlot decrements sold_count, flooring at zero. Idempotence is owned
// by the caller: it fires only on the guarded non-terminal to terminal
// transition of a ticket referencing this tier.
func (r *capacityRepository) ReleaseSlot(ctx context.Context, ticketTypeID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.TicketType{}).
		Where("id = ? AND sold_count > 0", ticketTypeID).
		Update("sold_count", gorm.Expr("sold_count - 1")).Error
}

// SoldCountMismatches recounts live tickets per tier and reports every tier
// whose counter disagrees with the recount.
func (r *capacityRepository) SoldCountMismatches(ctx context.Context) ([]SoldCountMismatch, error) {
	var rows []SoldCountMismatch
	err := r.db.WithContext(ctx).Raw(`
		SELECT tt.id AS ticket_type_id,
		       tt.sold_count AS sold_count,
		       COALESCE(live.cnt, 0) AS actual_count
		FROM ticket_types tt
		LEFT JOIN (
			SELECT ticket_type_id, COUNT(*) AS cnt
			FROM tickets
			WHERE status IN ('valid', 'used') AND ticket_type_id IS NOT NULL
			GROUP BY ticket_type_id
		) live ON live.ticket_type_id = tt.id
		WHERE tt.sold_count <> COALESCE(live.cnt, 0)`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *capacityRepository) Availability(ctx context.Context, ticketTypeID uuid.UUID) (*Availability, error) {
	ticketType, err := r.FindTypeByID(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}
	if ticketType == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket type not found")
	}
	availability := &Availability{
		Max:  ticketType.MaxQuantity,
		Sold: ticketType.SoldCount,
	}
	if ticketType.MaxQuantity != nil {
		remaining := *ticketType.MaxQuantity - ticketType.SoldCount
		if remaining < 0 {
			remaining = 0
		}
		availability.Remaining = &remaining
	}
	return availability, nil
}
