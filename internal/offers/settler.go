package offers

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

// favorSettler finishes a paid acceptance once the processor confirms: mint
// the ticket in the requested mode and resolve the offer, one unit with the
// payment row.
type favorSettler struct {
	svc *service
}

func (f *favorSettler) PaymentType() enums.PaymentType {
	return enums.PaymentTypeFavorTicket
}

func (f *favorSettler) OnCompleted(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	offerID, ok := payments.MetadataUUID(payment.Metadata, payments.MetaOfferID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed favor payment is missing its offer metadata")
	}
	repo := f.svc.repo.WithTx(tx)
	offer, err := repo.FindByID(ctx, offerID)
	if err != nil {
		return err
	}
	if offer == nil {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed favor payment references a missing offer")
	}

	mode := enums.TicketModePrivate
	if raw, ok := payments.MetadataString(payment.Metadata, payments.MetaTicketMode); ok {
		if parsed, err := enums.ParseTicketMode(raw); err == nil {
			mode = parsed
		}
	}

	ticket, err := f.svc.tickets.MintInTx(ctx, tx, tickets.MintInput{
		EventID:        offer.EventID,
		TicketTypeID:   offer.TicketTypeID,
		OwnerID:        payment.PayerID,
		OwnerEmail:     offer.RecipientEmail,
		Mode:           mode,
		PaymentMethod:  enums.PaymentMethodCard,
		DeliveryMethod: enums.DeliveryMethodDigital,
		PaymentID:      &payment.ID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConsistency, err, "confirmed favor payment could not mint its ticket")
	}

	affected, err := repo.Accept(ctx, offer.ID, ticket.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConsistency, "confirmed favor payment found its offer already resolved")
	}
	return nil
}

func (f *favorSettler) OnFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return nil
}

func (f *favorSettler) OnRefunded(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return f.svc.tickets.RefundByPaymentInTx(ctx, tx, payment.ID)
}
