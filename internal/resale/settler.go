package resale

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/internal/notifications"
	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// resaleSettler settles a confirmed resale purchase. Listing, ticket
// ownership, and the denormalized listing state all move in the same
// transaction as the payment resolution.
type resaleSettler struct {
	svc *service
}

func (r *resaleSettler) PaymentType() enums.PaymentType {
	return enums.PaymentTypeResalePurchase
}

func (r *resaleSettler) OnCompleted(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	listingID, ok := payments.MetadataUUID(payment.Metadata, payments.MetaListingID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed resale purchase is missing its listing metadata")
	}
	repo := r.svc.repo.WithTx(tx)
	listing, err := repo.FindByID(ctx, listingID)
	if err != nil {
		return err
	}
	if listing == nil {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed resale purchase references a missing listing")
	}

	affected, err := repo.MarkSold(ctx, listingID, payment.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConsistency, "completed resale purchase found its listing no longer active")
	}

	buyerEmail, _ := payments.MetadataString(payment.Metadata, payments.MetaBuyerEmail)
	ticketRepo := r.svc.ticketRepo.WithTx(tx)
	moved, err := ticketRepo.TransferOwnership(ctx, listing.TicketID, payment.PayerID, strings.ToLower(strings.TrimSpace(buyerEmail)))
	if err != nil {
		return err
	}
	if moved == 0 {
		return pkgerrors.New(pkgerrors.CodeConsistency, "sold ticket was no longer valid at settlement")
	}
	if _, err := ticketRepo.SetListingState(ctx, listing.TicketID, enums.TicketListingStatusSold, nil); err != nil {
		return err
	}

	r.svc.notifications.Notify(ctx, notifications.NotifyInput{
		UserID: listing.SellerID,
		Type:   enums.NotificationTypeListingSold,
		Title:  "Listing sold",
		Body:   "Your resale listing was purchased.",
		Data:   types.JSONMap{"listing_id": listing.ID.String(), "ticket_id": listing.TicketID.String()},
	})
	return nil
}

func (r *resaleSettler) OnFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return nil
}

// OnRefunded flags the sold listing for manual reconciliation. Reversing
// ownership of a settled resale has no defined semantics.
func (r *resaleSettler) OnRefunded(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	listingID, ok := payments.MetadataUUID(payment.Metadata, payments.MetaListingID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConsistency, "refunded resale purchase is missing its listing metadata")
	}
	affected, err := r.svc.repo.WithTx(tx).FlagRefund(ctx, listingID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConsistency, "refunded resale purchase references a listing that is not sold")
	}
	return nil
}
