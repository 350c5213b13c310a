package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// Settler applies the dependent-entity mutations for one payment type once
// the processor reports an outcome. Implementations run inside the same
// transaction that resolves the payment row, so a settlement failure rolls
// the whole confirmation back.
type Settler interface {
	PaymentType() enums.PaymentType
	OnCompleted(ctx context.Context, tx *gorm.DB, payment *models.Payment) error
	OnFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment) error
	OnRefunded(ctx context.Context, tx *gorm.DB, payment *models.Payment) error
}

// OpenInput captures the data a new ledger entry requires.
type OpenInput struct {
	Type             enums.PaymentType
	PayerID          uuid.UUID
	PayeeID          *uuid.UUID
	AmountCents      int
	PlatformFeeCents int
	Metadata         types.JSONMap
}

// ChargeInput opens a ledger entry and requests a processor charge intent.
type ChargeInput struct {
	OpenInput
	PayerRef string
	SourceID string
	Note     string
}

// ProcessorResult is the asynchronous outcome reported by the processor.
type ProcessorResult struct {
	IntentID  string
	Success   bool
	ChargeRef string
}

// Service is the payment ledger: it owns every money-movement row and
// dispatches confirmed outcomes to the per-type settlers.
type Service interface {
	RegisterSettler(settler Settler)
	Open(ctx context.Context, tx *gorm.DB, input OpenInput) (*models.Payment, error)
	Charge(ctx context.Context, input ChargeInput) (*models.Payment, *ChargeIntent, error)
	HandleProcessorResult(ctx context.Context, result ProcessorResult) error
	Refund(ctx context.Context, paymentID uuid.UUID, reason string) (*models.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ListByPayer(ctx context.Context, payerID uuid.UUID, limit int) ([]models.Payment, error)
	FeeSchedule() Schedule
}

type service struct {
	dbClient  *db.Client
	repo      Repository
	processor Processor
	referrals referrals.Service
	schedule  Schedule
	logg      *logger.Logger

	mu       sync.RWMutex
	settlers map[enums.PaymentType]Settler
}

// ServiceParams configure the payment ledger service.
type ServiceParams struct {
	DB        *db.Client
	Repo      Repository
	Processor Processor
	Referrals referrals.Service
	Schedule  Schedule
	Logger    *logger.Logger
}

// NewService wires the payment ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("payments db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payments processor required")
	}
	if params.Referrals == nil {
		return nil, fmt.Errorf("payments referrals service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("payments logger required")
	}
	return &service{
		dbClient:  params.DB,
		repo:      params.Repo,
		processor: params.Processor,
		referrals: params.Referrals,
		schedule:  params.Schedule,
		logg:      params.Logger,
		settlers:  map[enums.PaymentType]Settler{},
	}, nil
}

func (s *service) RegisterSettler(settler Settler) {
	if settler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlers[settler.PaymentType()] = settler
}

func (s *service) settlerFor(paymentType enums.PaymentType) Settler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settlers[paymentType]
}

func (s *service) FeeSchedule() Schedule {
	return s.schedule
}

// Open creates a pending ledger row. When tx is nil the row is written on
// the shared connection.
func (s *service) Open(ctx context.Context, tx *gorm.DB, input OpenInput) (*models.Payment, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment type %q", input.Type))
	}
	if input.PayerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	payment := &models.Payment{
		Type:             input.Type,
		PayerID:          input.PayerID,
		PayeeID:          input.PayeeID,
		AmountCents:      input.AmountCents,
		PlatformFeeCents: input.PlatformFeeCents,
		Status:           enums.PaymentStatusPending,
		Metadata:         input.Metadata,
	}
	if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// Charge opens the ledger row and then requests the charge intent. The
// intent call happens outside any transaction so no lock is held across the
// processor round trip.
func (s *service) Charge(ctx context.Context, input ChargeInput) (*models.Payment, *ChargeIntent, error) {
	payment, err := s.Open(ctx, nil, input.OpenInput)
	if err != nil {
		return nil, nil, err
	}

	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
	intent, err := s.processor.CreateChargeIntent(ctx, ChargeIntentRequest{
		AmountCents: input.AmountCents,
		Currency:    s.schedule.Currency,
		PayerRef:    input.PayerRef,
		SourceID:    input.SourceID,
		Note:        input.Note,
		ReferenceID: payment.ID.String(),
	})
	if err != nil {
		if _, markErr := s.repo.MarkFailed(ctx, payment.ID); markErr != nil {
			s.logg.Error(ctx, "marking payment failed after intent error", markErr)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeProcessor, err, "charge intent request failed")
	}
	if intent == nil || intent.IntentID == "" {
		if _, markErr := s.repo.MarkFailed(ctx, payment.ID); markErr != nil {
			s.logg.Error(ctx, "marking payment failed after empty intent", markErr)
		}
		return nil, nil, pkgerrors.New(pkgerrors.CodeProcessor, "processor returned no intent id")
	}

	affected, err := s.repo.AttachIntent(ctx, payment.ID, intent.IntentID)
	if err != nil {
		return nil, nil, err
	}
	if affected == 0 {
		return nil, nil, s.consistencyViolation(ctx, "payment left pending state before intent attach", payment.ID)
	}

	payment.Status = enums.PaymentStatusProcessing
	payment.ProcessorIntentID = &intent.IntentID
	return payment, intent, nil
}

// HandleProcessorResult applies an asynchronous processor outcome. The
// payment resolution and every dependent mutation commit as one unit; any
// mismatch with expected state aborts the whole confirmation loudly.
func (s *service) HandleProcessorResult(ctx context.Context, result ProcessorResult) error {
	if result.IntentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}

	payment, err := s.repo.FindByIntentID(ctx, result.IntentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return s.consistencyViolation(ctx, fmt.Sprintf("processor outcome for unknown intent %s", result.IntentID), uuid.Nil)
	}

	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
	return s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		if result.Success {
			affected, err := txRepo.MarkCompleted(ctx, payment.ID, result.ChargeRef)
			if err != nil {
				return err
			}
			if affected == 0 {
				return s.resolveRedelivery(ctx, txRepo, payment.ID, enums.PaymentStatusCompleted)
			}
			payment.Status = enums.PaymentStatusCompleted
			if result.ChargeRef != "" {
				payment.ProcessorChargeRef = &result.ChargeRef
			}
			if settler := s.settlerFor(payment.Type); settler != nil {
				if err := settler.OnCompleted(ctx, tx, payment); err != nil {
					return err
				}
			}
			return s.recordReferralEarning(ctx, tx, payment)
		}

		affected, err := txRepo.MarkFailed(ctx, payment.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.resolveRedelivery(ctx, txRepo, payment.ID, enums.PaymentStatusFailed)
		}
		payment.Status = enums.PaymentStatusFailed
		if settler := s.settlerFor(payment.Type); settler != nil {
			return settler.OnFailed(ctx, tx, payment)
		}
		return nil
	})
}

// resolveRedelivery distinguishes an idempotent webhook redelivery from a
// confirmation that no longer matches the ledger.
func (s *service) resolveRedelivery(ctx context.Context, repo Repository, paymentID uuid.UUID, expected enums.PaymentStatus) error {
	current, err := repo.FindByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if current != nil && current.Status == expected {
		s.logg.Info(ctx, "processor outcome redelivered; already applied")
		return nil
	}
	return s.consistencyViolation(ctx, fmt.Sprintf("processor outcome does not match ledger state %q", statusOf(current)), paymentID)
}

func (s *service) recordReferralEarning(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	snapshot, shareCents, err := referralFromMetadata(payment.Metadata)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConsistency, err, "corrupt referral metadata on completed payment")
	}
	if snapshot == nil {
		return nil
	}
	return s.referrals.RecordEarning(ctx, tx, *snapshot, &payment.ID, shareCents)
}

// Refund reverses a completed payment. The processor call happens before the
// ledger transaction so no lock spans the network round trip; the ledger
// write then re-checks the completed precondition.
func (s *service) Refund(ctx context.Context, paymentID uuid.UUID, reason string) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if payment.Status != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("payment in status %q cannot be refunded", payment.Status))
	}
	if payment.ProcessorChargeRef == nil || *payment.ProcessorChargeRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProcessor, "payment has no processor charge reference")
	}

	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
	if err := s.processor.RefundCharge(ctx, RefundRequest{
		ChargeRef:   *payment.ProcessorChargeRef,
		AmountCents: payment.AmountCents,
		Currency:    s.schedule.Currency,
		Reason:      reason,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProcessor, err, "processor refund failed")
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).MarkRefunded(ctx, payment.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.consistencyViolation(ctx, "payment left completed state during refund", payment.ID)
		}
		payment.Status = enums.PaymentStatusRefunded
		if settler := s.settlerFor(payment.Type); settler != nil {
			return settler.OnRefunded(ctx, tx, payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *service) ListByPayer(ctx context.Context, payerID uuid.UUID, limit int) ([]models.Payment, error) {
	if payerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByPayer(ctx, payerID, limit)
}

func (s *service) consistencyViolation(ctx context.Context, msg string, paymentID uuid.UUID) error {
	err := pkgerrors.New(pkgerrors.CodeConsistency, msg)
	if paymentID != uuid.Nil {
		ctx = s.logg.WithPaymentID(ctx, paymentID.String())
	}
	s.logg.Error(ctx, "payment ledger consistency violation", err)
	return err
}

func statusOf(payment *models.Payment) enums.PaymentStatus {
	if payment == nil {
		return ""
	}
	return payment.Status
}
