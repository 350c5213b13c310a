package squarewebhook

import (
	"context"
	"strings"

	"github.com/stagedoor/stagedoor-backend/internal/payments"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

type paymentLedger interface {
	HandleProcessorResult(ctx context.Context, result payments.ProcessorResult) error
}

type ServiceParams struct {
	Payments paymentLedger
	Logger   *logger.Logger
}

type Service struct {
	payments paymentLedger
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment ledger required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments: params.Payments,
		logg:     params.Logger,
	}, nil
}

type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

type SquarePayment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HandleEvent maps Square payment lifecycle events onto ledger outcomes.
// Non-terminal statuses are ignored; the ledger only hears about results.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		payment := event.Data.Object.Payment
		if payment == nil || payment.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
		}
		return s.applyPaymentStatus(ctx, payment)
	default:
		return nil
	}
}

func (s *Service) applyPaymentStatus(ctx context.Context, payment *SquarePayment) error {
	ctx = s.logg.WithEventID(ctx, payment.ID)

	switch strings.ToUpper(payment.Status) {
	case "COMPLETED":
		return s.payments.HandleProcessorResult(ctx, payments.ProcessorResult{
			IntentID:  payment.ID,
			Success:   true,
			ChargeRef: payment.ID,
		})
	case "FAILED", "CANCELED":
		return s.payments.HandleProcessorResult(ctx, payments.ProcessorResult{
			IntentID: payment.ID,
			Success:  false,
		})
	default:
		s.logg.Info(ctx, "square payment status ignored: "+payment.Status)
		return nil
	}
}
