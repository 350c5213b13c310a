package proximity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/config"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/realtime"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// Realtime event types pushed to the customer's private channel. The customer
// hears every status change of their handshake.
const (
	EventPaymentRequested  = "proximity_payment_requested"
	EventPaymentProcessing = "proximity_payment_processing"
	EventPaymentCompleted  = "proximity_payment_completed"
	EventPaymentFailed     = "proximity_payment_failed"
	EventPaymentCancelled  = "proximity_payment_cancelled"
	EventPaymentExpired    = "proximity_payment_expired"
)

const sweepBatchSize = 200

// InitiateInput starts a handshake: the vendor proposes a charge to a nearby
// customer.
type InitiateInput struct {
	VendorID     uuid.UUID
	CustomerID   uuid.UUID
	EventID      uuid.UUID
	TicketTypeID *uuid.UUID
	AmountCents  int
}

// ConfirmInput is the customer's approval of a pending handshake.
type ConfirmInput struct {
	PendingID     uuid.UUID
	CustomerID    uuid.UUID
	CustomerEmail string
	SourceID      string
	PayerRef      string
}

// ConfirmResult reports the in-flight payment the confirmed handshake is
// waiting on.
type ConfirmResult struct {
	Pending *models.PendingPayment
	Payment *models.Payment
	Intent  *payments.ChargeIntent
}

// Service is the proximity payment handshake protocol.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*models.PendingPayment, error)
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
	Cancel(ctx context.Context, pendingID, callerID uuid.UUID) (*models.PendingPayment, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, pendingID uuid.UUID) (*models.PendingPayment, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.PendingPayment, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.PendingPayment, error)
}

type service struct {
	dbClient  *db.Client
	repo      Repository
	tickets   tickets.Service
	payments  payments.Service
	referrals referrals.Service
	publisher realtime.Publisher
	logg      *logger.Logger
	expiry    time.Duration
}

// ServiceParams configure the proximity service.
type ServiceParams struct {
	DB        *db.Client
	Repo      Repository
	Tickets   tickets.Service
	Payments  payments.Service
	Referrals referrals.Service
	Publisher realtime.Publisher
	Logger    *logger.Logger
	Config    config.ProximityConfig
}

// NewService wires the proximity service and registers its payment settler.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("proximity db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("proximity repository required")
	}
	if params.Tickets == nil {
		return nil, fmt.Errorf("proximity tickets service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("proximity payments service required")
	}
	if params.Referrals == nil {
		return nil, fmt.Errorf("proximity referrals service required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("proximity realtime publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("proximity logger required")
	}
	expiryMinutes := params.Config.ExpiryMinutes
	if expiryMinutes <= 0 {
		expiryMinutes = 5
	}
	s := &service{
		dbClient:  params.DB,
		repo:      params.Repo,
		tickets:   params.Tickets,
		payments:  params.Payments,
		referrals: params.Referrals,
		publisher: params.Publisher,
		logg:      params.Logger,
		expiry:    time.Duration(expiryMinutes) * time.Minute,
	}
	params.Payments.RegisterSettler(&proximitySettler{svc: s})
	return s, nil
}

// Initiate creates the pending handshake and pushes the request to the
// customer's channel. The short deadline starts now.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*models.PendingPayment, error) {
	if input.VendorID == uuid.Nil || input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id and customer id are required")
	}
	if input.VendorID == input.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor cannot charge themselves")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if _, err := s.tickets.GetEvent(ctx, input.EventID); err != nil {
		return nil, err
	}
	if input.TicketTypeID != nil {
		availability, err := s.tickets.ComputeAvailability(ctx, *input.TicketTypeID)
		if err != nil {
			return nil, err
		}
		if availability.Remaining != nil && *availability.Remaining <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeCapacityExceeded, "ticket type is sold out")
		}
	}

	pending := &models.PendingPayment{
		VendorID:     input.VendorID,
		CustomerID:   input.CustomerID,
		EventID:      input.EventID,
		TicketTypeID: input.TicketTypeID,
		AmountCents:  input.AmountCents,
		Status:       enums.PendingPaymentStatusPending,
		ExpiresAt:    time.Now().UTC().Add(s.expiry),
	}
	if err := s.repo.Create(ctx, pending); err != nil {
		return nil, err
	}

	s.publish(ctx, pending, EventPaymentRequested)
	return pending, nil
}

// Confirm is the customer's approval. The pending-to-processing transition is
// one conditional update that re-checks the deadline, so an expired or
// already-resolved handshake can never reach the processor.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	pending, err := s.Get(ctx, input.PendingID)
	if err != nil {
		return nil, err
	}
	if pending.CustomerID != input.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the requested customer can confirm")
	}

	now := time.Now().UTC()
	affected, err := s.repo.MarkProcessing(ctx, input.PendingID, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if pending.Status == enums.PendingPaymentStatusPending && !now.Before(pending.ExpiresAt) {
			if _, err := s.repo.MarkExpired(ctx, input.PendingID, now); err != nil {
				return nil, err
			}
			s.publish(ctx, pending, EventPaymentExpired)
			return nil, pkgerrors.New(pkgerrors.CodeExpired, "payment request has expired")
		}
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("payment request in status %q cannot be confirmed", pending.Status))
	}
	s.publish(ctx, pending, EventPaymentProcessing)

	referral, err := s.referrals.ActiveContext(ctx, input.CustomerID, now)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.payments.FeeSchedule().Compute(enums.PaymentTypeProximitySale, pending.AmountCents, referral)
	if err != nil {
		return nil, err
	}

	metadata := payments.ReferralMetadata(types.JSONMap{
		payments.MetaPendingPaymentID: pending.ID.String(),
		payments.MetaEventID:          pending.EventID.String(),
		payments.MetaBuyerEmail:       strings.ToLower(strings.TrimSpace(input.CustomerEmail)),
	}, breakdown.Referral, breakdown.ReferralShareCents)
	if pending.TicketTypeID != nil {
		metadata[payments.MetaTicketTypeID] = pending.TicketTypeID.String()
	}

	payment, intent, err := s.payments.Charge(ctx, payments.ChargeInput{
		OpenInput: payments.OpenInput{
			Type:             enums.PaymentTypeProximitySale,
			PayerID:          input.CustomerID,
			PayeeID:          &pending.VendorID,
			AmountCents:      breakdown.TotalChargeCents,
			PlatformFeeCents: breakdown.PlatformFeeCents,
			Metadata:         metadata,
		},
		PayerRef: input.PayerRef,
		SourceID: input.SourceID,
		Note:     "proximity sale",
	})
	if err != nil {
		if _, failErr := s.repo.MarkFailed(ctx, pending.ID); failErr != nil {
			s.logg.Error(ctx, "marking handshake failed after charge error", failErr)
		}
		s.publish(ctx, pending, EventPaymentFailed)
		return nil, err
	}

	resolved, err := s.Get(ctx, pending.ID)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Pending: resolved, Payment: payment, Intent: intent}, nil
}

// Cancel withdraws a still-pending handshake. Either side may cancel.
func (s *service) Cancel(ctx context.Context, pendingID, callerID uuid.UUID) (*models.PendingPayment, error) {
	pending, err := s.Get(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if pending.VendorID != callerID && pending.CustomerID != callerID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only a handshake participant can cancel it")
	}
	affected, err := s.repo.MarkCancelled(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("payment request in status %q cannot be cancelled", pending.Status))
	}
	s.publish(ctx, pending, EventPaymentCancelled)
	return s.Get(ctx, pendingID)
}

// SweepExpired expires every pending handshake past its deadline and tells
// each customer. Rows resolved between the list and the update are skipped by
// the conditional guard.
func (s *service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.repo.ListExpiredPending(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	var errs error
	for i := range stale {
		pending := &stale[i]
		affected, err := s.repo.MarkExpired(ctx, pending.ID, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if affected == 0 {
			continue
		}
		expired++
		s.publish(ctx, pending, EventPaymentExpired)
	}
	return expired, errs
}

func (s *service) Get(ctx context.Context, pendingID uuid.UUID) (*models.PendingPayment, error) {
	if pendingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pending payment id is required")
	}
	pending, err := s.repo.FindByID(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
	}
	return pending, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.PendingPayment, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByCustomer(ctx, customerID, limit)
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.PendingPayment, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByVendor(ctx, vendorID, limit)
}

// publish pushes one status event to the customer's channel. Delivery is best
// effort; a push failure never fails the state transition it announces.
func (s *service) publish(ctx context.Context, pending *models.PendingPayment, eventType string) {
	err := s.publisher.PublishToCustomer(ctx, pending.CustomerID, realtime.Event{
		Type: eventType,
		Data: map[string]any{
			"pending_payment_id": pending.ID.String(),
			"vendor_id":          pending.VendorID.String(),
			"event_id":           pending.EventID.String(),
			"amount_cents":       pending.AmountCents,
			"expires_at":         pending.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		ctx = s.logg.WithField(ctx, "pending_payment_id", pending.ID.String())
		s.logg.Error(ctx, "publishing handshake event", err)
	}
}
