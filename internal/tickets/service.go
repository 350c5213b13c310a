package tickets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/internal/notifications"
	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

const transferTokenTTL = 24 * time.Hour

// CreateEventInput captures the fields an organizer supplies for a new event.
type CreateEventInput struct {
	OrganizerID uuid.UUID
	Name        string
	Venue       *string
	StartsAt    time.Time
	EndsAt      *time.Time
}

// CreateTicketTypeInput captures a new capacity tier.
type CreateTicketTypeInput struct {
	EventID     uuid.UUID
	OrganizerID uuid.UUID
	Name        string
	PriceCents  int
	MaxQuantity *int
}

// PurchaseInput starts a primary card purchase.
type PurchaseInput struct {
	TicketTypeID uuid.UUID
	BuyerID      uuid.UUID
	BuyerEmail   string
	SourceID     string
	PayerRef     string
}

// PurchaseResult reports either an immediately minted free ticket or the
// in-flight payment awaiting processor confirmation.
type PurchaseResult struct {
	Ticket  *models.Ticket
	Payment *models.Payment
	Intent  *payments.ChargeIntent
}

// MintInput mints one ticket inside the caller's transaction.
type MintInput struct {
	EventID        uuid.UUID
	TicketTypeID   *uuid.UUID
	OwnerID        uuid.UUID
	OwnerEmail     string
	Mode           enums.TicketMode
	PaymentMethod  enums.PaymentMethod
	DeliveryMethod enums.DeliveryMethod
	PaymentID      *uuid.UUID
}

// CashSaleInput records one in-person cash sale collected by event staff.
type CashSaleInput struct {
	EventID       uuid.UUID
	TicketTypeID  uuid.UUID
	SellerID      uuid.UUID
	CustomerID    *uuid.UUID
	CustomerEmail string
	AmountCents   int
}

// CashSaleResult reports the recorded sale and the minted ticket. FeeCharge
// reflects the separate organizer fee attempt; a nil payment with a non-nil
// sale means the fee charge failed and was recorded on the sale row.
type CashSaleResult struct {
	Sale       *models.CashSale
	Ticket     *models.Ticket
	FeePayment *models.Payment
}

// Service owns the ticket record lifecycle and the capacity ledger.
type Service interface {
	CreateEvent(ctx context.Context, input CreateEventInput) (*models.Event, error)
	GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	CreateTicketType(ctx context.Context, input CreateTicketTypeInput) (*models.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error)
	ComputeAvailability(ctx context.Context, ticketTypeID uuid.UUID) (*Availability, error)

	Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error)
	MintInTx(ctx context.Context, tx *gorm.DB, input MintInput) (*models.Ticket, error)
	RefundByPaymentInTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error

	Get(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Ticket, error)
	CheckIn(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
	Cancel(ctx context.Context, ticketID, callerID uuid.UUID) (*models.Ticket, error)

	IssueTransferToken(ctx context.Context, ticketID, ownerID uuid.UUID) (string, time.Time, error)
	RedeemTransferToken(ctx context.Context, token string, newOwnerID uuid.UUID, newOwnerEmail string) (*models.Ticket, error)

	RecordCashSale(ctx context.Context, input CashSaleInput) (*CashSaleResult, error)
}

type service struct {
	dbClient      *db.Client
	repo          Repository
	capacity      CapacityRepository
	payments      payments.Service
	referrals     referrals.Service
	notifications notifications.Service
	logg          *logger.Logger
}

// ServiceParams configure the ticket service.
type ServiceParams struct {
	DB            *db.Client
	Repo          Repository
	Capacity      CapacityRepository
	Payments      payments.Service
	Referrals     referrals.Service
	Notifications notifications.Service
	Logger        *logger.Logger
}

// NewService wires the ticket service and registers its payment settlers.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tickets db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("tickets repository required")
	}
	if params.Capacity == nil {
		return nil, fmt.Errorf("tickets capacity repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("tickets payments service required")
	}
	if params.Referrals == nil {
		return nil, fmt.Errorf("tickets referrals service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("tickets notifications service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("tickets logger required")
	}
	s := &service{
		dbClient:      params.DB,
		repo:          params.Repo,
		capacity:      params.Capacity,
		payments:      params.Payments,
		referrals:     params.Referrals,
		notifications: params.Notifications,
		logg:          params.Logger,
	}
	params.Payments.RegisterSettler(&primarySettler{svc: s})
	params.Payments.RegisterSettler(&cashFeeSettler{svc: s})
	return s, nil
}

func (s *service) CreateEvent(ctx context.Context, input CreateEventInput) (*models.Event, error) {
	if input.OrganizerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organizer id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event name is required")
	}
	if input.StartsAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event start time is required")
	}
	event := &models.Event{
		OrganizerID: input.OrganizerID,
		Name:        strings.TrimSpace(input.Name),
		Venue:       input.Venue,
		StartsAt:    input.StartsAt.UTC(),
		EndsAt:      input.EndsAt,
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	event, err := s.repo.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	return event, nil
}

func (s *service) CreateTicketType(ctx context.Context, input CreateTicketTypeInput) (*models.TicketType, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket type name is required")
	}
	if input.PriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if input.MaxQuantity != nil && *input.MaxQuantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max quantity must be positive when set")
	}
	event, err := s.GetEvent(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != input.OrganizerID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the organizer can add ticket types")
	}
	ticketType := &models.TicketType{
		EventID:     input.EventID,
		Name:        strings.TrimSpace(input.Name),
		PriceCents:  input.PriceCents,
		MaxQuantity: input.MaxQuantity,
		IsActive:    true,
	}
	if err := s.capacity.CreateType(ctx, ticketType); err != nil {
		return nil, err
	}
	return ticketType, nil
}

func (s *service) ListTicketTypes(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	return s.capacity.ListTypesByEvent(ctx, eventID)
}

func (s *service) ComputeAvailability(ctx context.Context, ticketTypeID uuid.UUID) (*Availability, error) {
	if ticketTypeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket type id is required")
	}
	return s.capacity.Availability(ctx, ticketTypeID)
}

// Purchase runs the primary-sale flow: validate, compute fees, open the
// ledger row, request the charge intent. The mint itself waits for the
// processor confirmation; a zero-total tier mints immediately.
func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if strings.TrimSpace(input.BuyerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email is required")
	}
	ticketType, err := s.capacity.FindTypeByID(ctx, input.TicketTypeID)
	if err != nil {
		return nil, err
	}
	if ticketType == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket type not found")
	}
	if !ticketType.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "ticket type is not on sale")
	}
	event, err := s.GetEvent(ctx, ticketType.EventID)
	if err != nil {
		return nil, err
	}

	referral, err := s.referrals.ActiveContext(ctx, input.BuyerID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	breakdown, err := s.payments.FeeSchedule().Compute(enums.PaymentTypePrimaryPurchase, ticketType.PriceCents, referral)
	if err != nil {
		return nil, err
	}

	if breakdown.TotalChargeCents == 0 {
		var ticket *models.Ticket
		err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
			minted, err := s.MintInTx(ctx, tx, MintInput{
				EventID:        ticketType.EventID,
				TicketTypeID:   &ticketType.ID,
				OwnerID:        input.BuyerID,
				OwnerEmail:     input.BuyerEmail,
				Mode:           enums.TicketModeStandard,
				PaymentMethod:  enums.PaymentMethodComp,
				DeliveryMethod: enums.DeliveryMethodDigital,
			})
			if err != nil {
				return err
			}
			ticket = minted
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &PurchaseResult{Ticket: ticket}, nil
	}

	metadata := payments.ReferralMetadata(types.JSONMap{
		payments.MetaEventID:        ticketType.EventID.String(),
		payments.MetaTicketTypeID:   ticketType.ID.String(),
		payments.MetaBuyerEmail:     strings.TrimSpace(input.BuyerEmail),
		payments.MetaTicketMode:     string(enums.TicketModeStandard),
		payments.MetaDeliveryMethod: string(enums.DeliveryMethodDigital),
	}, breakdown.Referral, breakdown.ReferralShareCents)

	payment, intent, err := s.payments.Charge(ctx, payments.ChargeInput{
		OpenInput: payments.OpenInput{
			Type:             enums.PaymentTypePrimaryPurchase,
			PayerID:          input.BuyerID,
			PayeeID:          &event.OrganizerID,
			AmountCents:      breakdown.TotalChargeCents,
			PlatformFeeCents: breakdown.PlatformFeeCents,
			Metadata:         metadata,
		},
		PayerRef: input.PayerRef,
		SourceID: input.SourceID,
		Note:     fmt.Sprintf("ticket purchase: %s", ticketType.Name),
	})
	if err != nil {
		return nil, err
	}
	return &PurchaseResult{Payment: payment, Intent: intent}, nil
}

// MintInTx reserves capacity and creates the ticket row as one unit inside
// the caller's transaction.
func (s *service) MintInTx(ctx context.Context, tx *gorm.DB, input MintInput) (*models.Ticket, error) {
	if input.EventID == uuid.Nil || input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id and owner id are required")
	}
	if !input.Mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ticket mode %q", input.Mode))
	}
	if input.TicketTypeID != nil {
		if err := s.capacity.WithTx(tx).ReserveSlot(ctx, *input.TicketTypeID); err != nil {
			return nil, err
		}
	}
	ticket := &models.Ticket{
		EventID:        input.EventID,
		TicketTypeID:   input.TicketTypeID,
		OwnerID:        input.OwnerID,
		OwnerEmail:     strings.ToLower(strings.TrimSpace(input.OwnerEmail)),
		Status:         enums.TicketStatusValid,
		Mode:           input.Mode,
		ListingStatus:  enums.TicketListingStatusNone,
		PaymentMethod:  input.PaymentMethod,
		DeliveryMethod: input.DeliveryMethod,
		PaymentID:      input.PaymentID,
	}
	if err := s.repo.WithTx(tx).Create(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// RefundByPaymentInTx reverses the ticket a refunded payment minted: the
// ticket goes terminal and its capacity slot is released, inside the caller's
// transaction.
func (s *service) RefundByPaymentInTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	ticket, err := repo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if ticket == nil {
		return pkgerrors.New(pkgerrors.CodeConsistency, "refunded payment has no ticket")
	}
	affected, err := repo.MarkRefunded(ctx, ticket.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConsistency, "refunded ticket is already terminal")
	}
	if ticket.TicketTypeID != nil {
		return s.capacity.WithTx(tx).ReleaseSlot(ctx, *ticket.TicketTypeID)
	}
	return nil
}

func (s *service) Get(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	if ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id is required")
	}
	ticket, err := s.repo.FindByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	return ticket, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Ticket, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByOwner(ctx, ownerID, limit)
}

// CheckIn moves a valid ticket to used. Staff authorization is enforced by
// the caller.
func (s *service) CheckIn(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	affected, err := s.repo.MarkUsed(ctx, ticketID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("ticket in status %q cannot be checked in", ticket.Status))
	}
	return s.Get(ctx, ticketID)
}

// Cancel transitions a ticket into cancelled and releases its capacity slot
// in the same transaction. The conditional update gates the release, so a
// repeated cancel never decrements twice.
func (s *service) Cancel(ctx context.Context, ticketID, callerID uuid.UUID) (*models.Ticket, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.OwnerID != callerID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the ticket owner can cancel it")
	}
	if ticket.ListingStatus == enums.TicketListingStatusListed {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "cancel the active listing before cancelling the ticket")
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).MarkCancelled(ctx, ticketID, time.Now().UTC())
		if err != nil {
			return err
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("ticket in status %q cannot be cancelled", ticket.Status))
		}
		if ticket.TicketTypeID != nil {
			return s.capacity.WithTx(tx).ReleaseSlot(ctx, *ticket.TicketTypeID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, ticketID)
}

// IssueTransferToken hands the owner a short-lived credential for moving the
// ticket to another identity.
func (s *service) IssueTransferToken(ctx context.Context, ticketID, ownerID uuid.UUID) (string, time.Time, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return "", time.Time{}, err
	}
	if ticket.OwnerID != ownerID {
		return "", time.Time{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the ticket owner can transfer it")
	}

	token := uuid.NewString()
	expiresAt := time.Now().UTC().Add(transferTokenTTL)
	affected, err := s.repo.SetTransferToken(ctx, ticketID, token, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	if affected == 0 {
		return "", time.Time{}, pkgerrors.New(pkgerrors.CodeInvalidState, "ticket must be valid and unlisted to transfer")
	}
	return token, expiresAt, nil
}

// RedeemTransferToken moves ownership to the caller and clears the token.
func (s *service) RedeemTransferToken(ctx context.Context, token string, newOwnerID uuid.UUID, newOwnerEmail string) (*models.Ticket, error) {
	if strings.TrimSpace(token) == "" || newOwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer token and new owner are required")
	}
	ticket, err := s.repo.FindByTransferToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transfer token not recognized")
	}
	if ticket.TransferTokenExpiresAt == nil || time.Now().UTC().After(*ticket.TransferTokenExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "transfer token has expired")
	}
	if ticket.OwnerID == newOwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "ticket already belongs to this user")
	}

	affected, err := s.repo.TransferOwnership(ctx, ticket.ID, newOwnerID, strings.ToLower(strings.TrimSpace(newOwnerEmail)))
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "ticket is no longer transferable")
	}

	s.notifications.Notify(ctx, notifications.NotifyInput{
		UserID: newOwnerID,
		Type:   enums.NotificationTypeTicketReceived,
		Title:  "Ticket received",
		Body:   "A ticket was transferred to you.",
		Data:   types.JSONMap{"ticket_id": ticket.ID.String(), "event_id": ticket.EventID.String()},
	})
	return s.Get(ctx, ticket.ID)
}

// RecordCashSale persists the collected sale and the minted ticket first,
// then attempts the separate organizer fee charge. A failed fee charge is
// recorded on the sale row and never blocks the sale itself.
func (s *service) RecordCashSale(ctx context.Context, input CashSaleInput) (*CashSaleResult, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	event, err := s.GetEvent(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	ticketType, err := s.capacity.FindTypeByID(ctx, input.TicketTypeID)
	if err != nil {
		return nil, err
	}
	if ticketType == nil || ticketType.EventID != input.EventID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket type not found for event")
	}

	breakdown, err := s.payments.FeeSchedule().Compute(enums.PaymentTypeVendorPOS, input.AmountCents, nil)
	if err != nil {
		return nil, err
	}

	ownerID := input.SellerID
	delivery := enums.DeliveryMethodWillCall
	if input.CustomerID != nil {
		ownerID = *input.CustomerID
		delivery = enums.DeliveryMethodDigital
	}

	result := &CashSaleResult{}
	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		ticket, err := s.MintInTx(ctx, tx, MintInput{
			EventID:        input.EventID,
			TicketTypeID:   &ticketType.ID,
			OwnerID:        ownerID,
			OwnerEmail:     input.CustomerEmail,
			Mode:           enums.TicketModeStandard,
			PaymentMethod:  enums.PaymentMethodCash,
			DeliveryMethod: delivery,
		})
		if err != nil {
			return err
		}
		sale := &models.CashSale{
			EventID:      input.EventID,
			SellerID:     input.SellerID,
			OrganizerID:  event.OrganizerID,
			TicketID:     &ticket.ID,
			TicketTypeID: &ticketType.ID,
			AmountCents:  input.AmountCents,
			FeeCents:     breakdown.PlatformFeeCents,
			CollectedAt:  time.Now().UTC(),
		}
		if err := s.repo.WithTx(tx).CreateCashSale(ctx, sale); err != nil {
			return err
		}
		result.Sale = sale
		result.Ticket = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	if breakdown.PlatformFeeCents > 0 {
		feePayment, _, err := s.payments.Charge(ctx, payments.ChargeInput{
			OpenInput: payments.OpenInput{
				Type:        enums.PaymentTypeVendorPOS,
				PayerID:     event.OrganizerID,
				AmountCents: breakdown.PlatformFeeCents,
				Metadata: types.JSONMap{
					payments.MetaEventID:    input.EventID.String(),
					payments.MetaCashSaleID: result.Sale.ID.String(),
				},
			},
			PayerRef: event.OrganizerID.String(),
			Note:     "cash sale platform fee",
		})
		if err != nil {
			ctx = s.logg.WithEventID(ctx, input.EventID.String())
			s.logg.Error(ctx, "cash sale fee charge failed", err)
			if setErr := s.repo.SetCashFeeError(ctx, result.Sale.ID, err.Error()); setErr != nil {
				s.logg.Error(ctx, "recording cash sale fee error", setErr)
			}
		} else {
			result.FeePayment = feePayment
		}
	}
	return result, nil
}
