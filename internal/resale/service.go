package resale

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/internal/notifications"
	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// CreateListingInput starts a new active listing for a ticket.
type CreateListingInput struct {
	TicketID   uuid.UUID
	SellerID   uuid.UUID
	PriceCents int
}

// PurchaseListingInput starts a buyer's resale purchase.
type PurchaseListingInput struct {
	ListingID  uuid.UUID
	BuyerID    uuid.UUID
	BuyerEmail string
	SourceID   string
	PayerRef   string
}

// PurchaseListingResult reports the in-flight payment awaiting the
// processor confirmation that will settle the listing.
type PurchaseListingResult struct {
	Payment *models.Payment
	Intent  *payments.ChargeIntent
}

// Service is the resale listing ledger.
type Service interface {
	CreateListing(ctx context.Context, input CreateListingInput) (*models.ResaleListing, error)
	CancelListing(ctx context.Context, listingID, callerID uuid.UUID) (*models.ResaleListing, error)
	PurchaseListing(ctx context.Context, input PurchaseListingInput) (*PurchaseListingResult, error)
	Get(ctx context.Context, listingID uuid.UUID) (*models.ResaleListing, error)
	ListActiveByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.ResaleListing, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.ResaleListing, error)
}

type service struct {
	dbClient      *db.Client
	repo          Repository
	ticketRepo    tickets.Repository
	payments      payments.Service
	notifications notifications.Service
	logg          *logger.Logger
}

// ServiceParams configure the resale service.
type ServiceParams struct {
	DB            *db.Client
	Repo          Repository
	TicketRepo    tickets.Repository
	Payments      payments.Service
	Notifications notifications.Service
	Logger        *logger.Logger
}

// NewService wires the resale service and registers its payment settler.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("resale db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("resale repository required")
	}
	if params.TicketRepo == nil {
		return nil, fmt.Errorf("resale ticket repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("resale payments service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("resale notifications service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("resale logger required")
	}
	s := &service{
		dbClient:      params.DB,
		repo:          params.Repo,
		ticketRepo:    params.TicketRepo,
		payments:      params.Payments,
		notifications: params.Notifications,
		logg:          params.Logger,
	}
	params.Payments.RegisterSettler(&resaleSettler{svc: s})
	return s, nil
}

// CreateListing inserts the listing and mirrors the ticket's denormalized
// listing state in one transaction. The partial unique index decides a race
// between two creates (losers get DUPLICATE_LISTING); the conditional mirror
// write decides a race against a cancel or transfer that lands after the
// validation read, rolling the insert back.
func (s *service) CreateListing(ctx context.Context, input CreateListingInput) (*models.ResaleListing, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if input.PriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing price must be positive")
	}
	ticket, err := s.ticketRepo.FindByID(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	if !ticket.Mode.ResaleEligible() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "private tickets cannot be listed for resale")
	}
	if ticket.OwnerID != input.SellerID {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "only the ticket owner can list it")
	}
	if ticket.Status != enums.TicketStatusValid {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("ticket in status %q cannot be listed", ticket.Status))
	}

	listing := &models.ResaleListing{
		TicketID:   input.TicketID,
		SellerID:   input.SellerID,
		PriceCents: input.PriceCents,
		Status:     enums.ListingStatusActive,
	}
	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, listing); err != nil {
			if db.IsUniqueViolation(err) {
				return pkgerrors.Wrap(pkgerrors.CodeDuplicateListing, err, "ticket already has an active listing")
			}
			return err
		}
		affected, err := s.ticketRepo.WithTx(tx).MarkListed(ctx, input.TicketID, input.PriceCents)
		if err != nil {
			return err
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "ticket is no longer listable")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// CancelListing is a seller-only, active-only transition that resets the
// ticket's denormalized listing state.
func (s *service) CancelListing(ctx context.Context, listingID, callerID uuid.UUID) (*models.ResaleListing, error) {
	listing, err := s.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != callerID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the seller can cancel this listing")
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).MarkCancelled(ctx, listingID, time.Now().UTC())
		if err != nil {
			return err
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("listing in status %q cannot be cancelled", listing.Status))
		}
		_, err = s.ticketRepo.WithTx(tx).SetListingState(ctx, listing.TicketID, enums.TicketListingStatusNone, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, listingID)
}

// PurchaseListing validates the listing, computes the seller-side fee, and
// opens the charge. Settlement happens on the processor confirmation.
func (s *service) PurchaseListing(ctx context.Context, input PurchaseListingInput) (*PurchaseListingResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	listing, err := s.Get(ctx, input.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != enums.ListingStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("listing in status %q cannot be purchased", listing.Status))
	}
	if listing.SellerID == input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "seller cannot buy their own listing")
	}
	ticket, err := s.ticketRepo.FindByID(ctx, listing.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil || ticket.Status != enums.TicketStatusValid {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "listed ticket is no longer valid")
	}

	breakdown, err := s.payments.FeeSchedule().Compute(enums.PaymentTypeResalePurchase, listing.PriceCents, nil)
	if err != nil {
		return nil, err
	}

	payment, intent, err := s.payments.Charge(ctx, payments.ChargeInput{
		OpenInput: payments.OpenInput{
			Type:             enums.PaymentTypeResalePurchase,
			PayerID:          input.BuyerID,
			PayeeID:          &listing.SellerID,
			AmountCents:      breakdown.TotalChargeCents,
			PlatformFeeCents: breakdown.PlatformFeeCents,
			Metadata: types.JSONMap{
				payments.MetaListingID:  listing.ID.String(),
				payments.MetaBuyerEmail: strings.ToLower(strings.TrimSpace(input.BuyerEmail)),
			},
		},
		PayerRef: input.PayerRef,
		SourceID: input.SourceID,
		Note:     "resale ticket purchase",
	})
	if err != nil {
		return nil, err
	}
	return &PurchaseListingResult{Payment: payment, Intent: intent}, nil
}

func (s *service) Get(ctx context.Context, listingID uuid.UUID) (*models.ResaleListing, error) {
	if listingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	listing, err := s.repo.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	return listing, nil
}

func (s *service) ListActiveByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.ResaleListing, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListActiveByEvent(ctx, eventID, limit)
}

func (s *service) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.ResaleListing, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListBySeller(ctx, sellerID, limit)
}
