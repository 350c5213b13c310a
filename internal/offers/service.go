package offers

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
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/config"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// CreateOfferInput captures an organizer's favor ticket grant.
type CreateOfferInput struct {
	EventID        uuid.UUID
	TicketTypeID   *uuid.UUID
	OrganizerID    uuid.UUID
	RecipientEmail string
	RecipientID    *uuid.UUID
	PriceCents     int
	Mode           enums.TicketMode
}

// AcceptOfferInput resolves a pending offer in the recipient's favor.
// SkipFee selects the no-fee private mint for a free public offer.
type AcceptOfferInput struct {
	OfferID     uuid.UUID
	CallerID    uuid.UUID
	CallerEmail string
	SkipFee     bool
	SourceID    string
	PayerRef    string
}

// AcceptOfferResult reports either an immediately minted ticket or the
// in-flight payment a paid acceptance is waiting on.
type AcceptOfferResult struct {
	Offer   *models.TicketOffer
	Ticket  *models.Ticket
	Payment *models.Payment
	Intent  *payments.ChargeIntent
}

// Service is the favor offer protocol.
type Service interface {
	CreateOffer(ctx context.Context, input CreateOfferInput) (*models.TicketOffer, error)
	AcceptOffer(ctx context.Context, input AcceptOfferInput) (*AcceptOfferResult, error)
	DeclineOffer(ctx context.Context, offerID, callerID uuid.UUID, callerEmail string) (*models.TicketOffer, error)
	CancelOffer(ctx context.Context, offerID, organizerID uuid.UUID) (*models.TicketOffer, error)
	LinkAndNotifyOnSignup(ctx context.Context, email string, newUserID uuid.UUID) (int, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	Get(ctx context.Context, offerID uuid.UUID) (*models.TicketOffer, error)
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) ([]models.TicketOffer, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.TicketOffer, error)
}

type service struct {
	dbClient      *db.Client
	repo          Repository
	tickets       tickets.Service
	payments      payments.Service
	referrals     referrals.Service
	notifications notifications.Service
	logg          *logger.Logger
	expiry        time.Duration
}

// ServiceParams configure the offer service.
type ServiceParams struct {
	DB            *db.Client
	Repo          Repository
	Tickets       tickets.Service
	Payments      payments.Service
	Referrals     referrals.Service
	Notifications notifications.Service
	Logger        *logger.Logger
	Config        config.OffersConfig
}

// NewService wires the offer service and registers its payment settler.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("offers db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("offers repository required")
	}
	if params.Tickets == nil {
		return nil, fmt.Errorf("offers tickets service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("offers payments service required")
	}
	if params.Referrals == nil {
		return nil, fmt.Errorf("offers referrals service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("offers notifications service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("offers logger required")
	}
	expiryDays := params.Config.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = 7
	}
	s := &service{
		dbClient:      params.DB,
		repo:          params.Repo,
		tickets:       params.Tickets,
		payments:      params.Payments,
		referrals:     params.Referrals,
		notifications: params.Notifications,
		logg:          params.Logger,
		expiry:        time.Duration(expiryDays) * 24 * time.Hour,
	}
	params.Payments.RegisterSettler(&favorSettler{svc: s})
	return s, nil
}

func (s *service) CreateOffer(ctx context.Context, input CreateOfferInput) (*models.TicketOffer, error) {
	if input.OrganizerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organizer id is required")
	}
	email := strings.ToLower(strings.TrimSpace(input.RecipientEmail))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}
	if input.PriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if input.Mode != enums.TicketModePrivate && input.Mode != enums.TicketModePublic {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer mode must be private or public")
	}
	event, err := s.tickets.GetEvent(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != input.OrganizerID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the organizer can create offers for this event")
	}

	offer := &models.TicketOffer{
		EventID:        input.EventID,
		TicketTypeID:   input.TicketTypeID,
		OrganizerID:    input.OrganizerID,
		RecipientEmail: email,
		RecipientID:    input.RecipientID,
		PriceCents:     input.PriceCents,
		Mode:           input.Mode,
		Status:         enums.OfferStatusPending,
		ExpiresAt:      time.Now().UTC().Add(s.expiry),
	}
	if err := s.repo.Create(ctx, offer); err != nil {
		return nil, err
	}

	if offer.RecipientID != nil {
		s.notifications.Notify(ctx, notifications.NotifyInput{
			UserID: *offer.RecipientID,
			Type:   enums.NotificationTypeOfferCreated,
			Title:  "You received a ticket offer",
			Body:   fmt.Sprintf("You have been offered a ticket to %s.", event.Name),
			Data:   types.JSONMap{"offer_id": offer.ID.String(), "event_id": event.ID.String()},
		})
	}
	return offer, nil
}

// AcceptOffer resolves a pending, unexpired offer. Free private offers mint
// immediately; free public offers mint according to the caller's fee choice;
// paid offers route through the payment pipeline and mint on confirmation.
func (s *service) AcceptOffer(ctx context.Context, input AcceptOfferInput) (*AcceptOfferResult, error) {
	offer, err := s.Get(ctx, input.OfferID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRecipient(offer, input.CallerID, input.CallerEmail); err != nil {
		return nil, err
	}
	if offer.Status != enums.OfferStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("offer in status %q cannot be accepted", offer.Status))
	}
	now := time.Now().UTC()
	if !now.Before(offer.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "offer has expired")
	}

	if offer.PriceCents == 0 {
		mintMode := enums.TicketModePrivate
		feeCents := 0
		if offer.Mode == enums.TicketModePublic && !input.SkipFee {
			mintMode = enums.TicketModePublic
			feeCents = s.payments.FeeSchedule().PublicMintFeeCents
		}
		if feeCents == 0 {
			return s.acceptAndMint(ctx, offer, input, mintMode)
		}
		return s.acceptViaPayment(ctx, offer, input, mintMode, feeCents, nil)
	}

	referral, err := s.referrals.ActiveContext(ctx, input.CallerID, now)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.payments.FeeSchedule().Compute(enums.PaymentTypeFavorTicket, offer.PriceCents, referral)
	if err != nil {
		return nil, err
	}
	return s.acceptViaPayment(ctx, offer, input, offer.Mode, breakdown.TotalChargeCents, &breakdown)
}

// acceptAndMint resolves a no-payment acceptance: the offer transition and
// the mint commit together, with the deadline re-checked inside the guarded
// update.
func (s *service) acceptAndMint(ctx context.Context, offer *models.TicketOffer, input AcceptOfferInput, mode enums.TicketMode) (*AcceptOfferResult, error) {
	result := &AcceptOfferResult{}
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		ticket, err := s.tickets.MintInTx(ctx, tx, tickets.MintInput{
			EventID:        offer.EventID,
			TicketTypeID:   offer.TicketTypeID,
			OwnerID:        input.CallerID,
			OwnerEmail:     offer.RecipientEmail,
			Mode:           mode,
			PaymentMethod:  enums.PaymentMethodComp,
			DeliveryMethod: enums.DeliveryMethodDigital,
		})
		if err != nil {
			return err
		}
		affected, err := s.repo.WithTx(tx).Accept(ctx, offer.ID, ticket.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "offer was resolved by another action")
		}
		result.Ticket = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	resolved, err := s.Get(ctx, offer.ID)
	if err != nil {
		return nil, err
	}
	result.Offer = resolved
	return result, nil
}

func (s *service) acceptViaPayment(ctx context.Context, offer *models.TicketOffer, input AcceptOfferInput, mode enums.TicketMode, amountCents int, breakdown *payments.Breakdown) (*AcceptOfferResult, error) {
	metadata := types.JSONMap{
		payments.MetaOfferID:    offer.ID.String(),
		payments.MetaEventID:    offer.EventID.String(),
		payments.MetaBuyerEmail: offer.RecipientEmail,
		payments.MetaTicketMode: string(mode),
	}
	platformFee := amountCents
	if breakdown != nil {
		platformFee = breakdown.PlatformFeeCents
		metadata = payments.ReferralMetadata(metadata, breakdown.Referral, breakdown.ReferralShareCents)
	}

	payment, intent, err := s.payments.Charge(ctx, payments.ChargeInput{
		OpenInput: payments.OpenInput{
			Type:             enums.PaymentTypeFavorTicket,
			PayerID:          input.CallerID,
			PayeeID:          &offer.OrganizerID,
			AmountCents:      amountCents,
			PlatformFeeCents: platformFee,
			Metadata:         metadata,
		},
		PayerRef: input.PayerRef,
		SourceID: input.SourceID,
		Note:     "favor ticket acceptance",
	})
	if err != nil {
		return nil, err
	}
	return &AcceptOfferResult{Offer: offer, Payment: payment, Intent: intent}, nil
}

func (s *service) DeclineOffer(ctx context.Context, offerID, callerID uuid.UUID, callerEmail string) (*models.TicketOffer, error) {
	offer, err := s.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRecipient(offer, callerID, callerEmail); err != nil {
		return nil, err
	}
	affected, err := s.repo.MarkDeclined(ctx, offerID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("offer in status %q cannot be declined", offer.Status))
	}
	return s.Get(ctx, offerID)
}

func (s *service) CancelOffer(ctx context.Context, offerID, organizerID uuid.UUID) (*models.TicketOffer, error) {
	offer, err := s.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.OrganizerID != organizerID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the organizer can cancel this offer")
	}
	affected, err := s.repo.MarkCancelled(ctx, offerID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("offer in status %q cannot be cancelled", offer.Status))
	}
	return s.Get(ctx, offerID)
}

// LinkAndNotifyOnSignup runs during new-identity provisioning: every pending
// offer addressed to the email and not yet linked gets the new identity and
// one notification. Idempotent; relinking an already linked offer is a no-op.
func (s *service) LinkAndNotifyOnSignup(ctx context.Context, email string, newUserID uuid.UUID) (int, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || newUserID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "email and user id are required")
	}
	pending, err := s.repo.PendingUnlinkedByEmail(ctx, normalized)
	if err != nil {
		return 0, err
	}
	linked := 0
	for _, offer := range pending {
		affected, err := s.repo.LinkRecipient(ctx, offer.ID, newUserID)
		if err != nil {
			return linked, err
		}
		if affected == 0 {
			continue
		}
		linked++
		s.notifications.Notify(ctx, notifications.NotifyInput{
			UserID: newUserID,
			Type:   enums.NotificationTypeOfferLinked,
			Title:  "A ticket offer is waiting for you",
			Body:   "An organizer offered you a ticket before you joined.",
			Data:   types.JSONMap{"offer_id": offer.ID.String(), "event_id": offer.EventID.String()},
		})
	}
	return linked, nil
}

func (s *service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.SweepExpired(ctx, now)
}

func (s *service) Get(ctx context.Context, offerID uuid.UUID) (*models.TicketOffer, error) {
	if offerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id is required")
	}
	offer, err := s.repo.FindByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
	}
	return offer, nil
}

func (s *service) ListByOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) ([]models.TicketOffer, error) {
	if organizerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organizer id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByOrganizer(ctx, organizerID, limit)
}

func (s *service) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.TicketOffer, error) {
	if recipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByRecipient(ctx, recipientID, limit)
}

func (s *service) authorizeRecipient(offer *models.TicketOffer, callerID uuid.UUID, callerEmail string) error {
	if offer.RecipientID != nil {
		if *offer.RecipientID == callerID {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "offer is addressed to another user")
	}
	if strings.EqualFold(strings.TrimSpace(callerEmail), offer.RecipientEmail) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "offer is addressed to another email")
}
