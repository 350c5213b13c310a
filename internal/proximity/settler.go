package proximity

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
)

// proximitySettler finishes a confirmed handshake once the processor answers:
// the handshake resolves, the ticket mints, and the customer hears about it.
type proximitySettler struct {
	svc *service
}

func (p *proximitySettler) PaymentType() enums.PaymentType {
	return enums.PaymentTypeProximitySale
}

func (p *proximitySettler) OnCompleted(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	pendingID, ok := payments.MetadataUUID(payment.Metadata, payments.MetaPendingPaymentID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed proximity payment is missing its handshake metadata")
	}
	repo := p.svc.repo.WithTx(tx)
	pending, err := repo.FindByID(ctx, pendingID)
	if err != nil {
		return err
	}
	if pending == nil {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed proximity payment references a missing handshake")
	}

	affected, err := repo.MarkCompleted(ctx, pendingID, payment.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		if pending.Status == enums.PendingPaymentStatusCompleted &&
			pending.PaymentID != nil && *pending.PaymentID == payment.ID {
			// Redelivered confirmation, already settled.
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed proximity payment found its handshake no longer processing")
	}

	buyerEmail, _ := payments.MetadataString(payment.Metadata, payments.MetaBuyerEmail)
	_, err = p.svc.tickets.MintInTx(ctx, tx, tickets.MintInput{
		EventID:        pending.EventID,
		TicketTypeID:   pending.TicketTypeID,
		OwnerID:        pending.CustomerID,
		OwnerEmail:     buyerEmail,
		Mode:           enums.TicketModeStandard,
		PaymentMethod:  enums.PaymentMethodCard,
		DeliveryMethod: enums.DeliveryMethodDigital,
		PaymentID:      &payment.ID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConsistency, err, "confirmed proximity payment could not mint its ticket")
	}

	p.svc.publish(ctx, pending, EventPaymentCompleted)
	return nil
}

func (p *proximitySettler) OnFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	pendingID, ok := payments.MetadataUUID(payment.Metadata, payments.MetaPendingPaymentID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConsistency, "failed proximity payment is missing its handshake metadata")
	}
	repo := p.svc.repo.WithTx(tx)
	if _, err := repo.MarkFailed(ctx, pendingID); err != nil {
		return err
	}
	pending, err := repo.FindByID(ctx, pendingID)
	if err != nil {
		return err
	}
	if pending != nil {
		p.svc.publish(ctx, pending, EventPaymentFailed)
	}
	return nil
}

func (p *proximitySettler) OnRefunded(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return p.svc.tickets.RefundByPaymentInTx(ctx, tx, payment.ID)
}
