package tickets

import (
	"context"

	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
)

// primarySettler applies confirmed primary-purchase outcomes: it mints the
// ticket (reserving capacity) inside the confirmation transaction, and on
// refund reverses the ticket and its slot.
type primarySettler struct {
	svc *service
}

func (p *primarySettler) PaymentType() enums.PaymentType {
	return enums.PaymentTypePrimaryPurchase
}

func (p *primarySettler) OnCompleted(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	eventID, ok := payments.MetadataUUID(payment.Metadata, payments.MetaEventID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed purchase is missing event metadata")
	}
	ticketTypeID, ok := payments.MetadataUUID(payment.Metadata, payments.MetaTicketTypeID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed purchase is missing ticket type metadata")
	}
	buyerEmail, _ := payments.MetadataString(payment.Metadata, payments.MetaBuyerEmail)
	mode := enums.TicketModeStandard
	if raw, ok := payments.MetadataString(payment.Metadata, payments.MetaTicketMode); ok {
		if parsed, err := enums.ParseTicketMode(raw); err == nil {
			mode = parsed
		}
	}

	_, err := p.svc.MintInTx(ctx, tx, MintInput{
		EventID:        eventID,
		TicketTypeID:   &ticketTypeID,
		OwnerID:        payment.PayerID,
		OwnerEmail:     buyerEmail,
		Mode:           mode,
		PaymentMethod:  enums.PaymentMethodCard,
		DeliveryMethod: enums.DeliveryMethodDigital,
		PaymentID:      &payment.ID,
	})
	if err != nil {
		// The charge already succeeded; a mint failure here means the tier
		// was disabled or exhausted after the intent was opened.
		return pkgerrors.Wrap(pkgerrors.CodeConsistency, err, "confirmed purchase could not mint its ticket")
	}
	return nil
}

func (p *primarySettler) OnFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return nil
}

func (p *primarySettler) OnRefunded(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return p.svc.RefundByPaymentInTx(ctx, tx, payment.ID)
}

// cashFeeSettler resolves the separate organizer fee charge for a recorded
// cash sale.
type cashFeeSettler struct {
	svc *service
}

func (c *cashFeeSettler) PaymentType() enums.PaymentType {
	return enums.PaymentTypeVendorPOS
}

func (c *cashFeeSettler) OnCompleted(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	saleID, ok := payments.MetadataUUID(payment.Metadata, payments.MetaCashSaleID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed cash fee is missing its sale metadata")
	}
	repo := c.svc.repo.WithTx(tx)
	affected, err := repo.MarkCashFeeCharged(ctx, saleID, payment.ID)
	if err != nil {
		return err
	}
	if affected == 0 {
		sale, err := repo.FindCashSaleByID(ctx, saleID)
		if err != nil {
			return err
		}
		if sale == nil {
			return pkgerrors.New(pkgerrors.CodeConsistency, "completed cash fee references a missing sale")
		}
		// Already charged: redelivered confirmation, nothing to do.
	}
	return nil
}

func (c *cashFeeSettler) OnFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	saleID, ok := payments.MetadataUUID(payment.Metadata, payments.MetaCashSaleID)
	if !ok {
		return nil
	}
	return c.svc.repo.WithTx(tx).SetCashFeeError(ctx, saleID, "processor declined the fee charge")
}

func (c *cashFeeSettler) OnRefunded(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return nil
}
