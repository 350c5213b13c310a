package payments

import (
	"context"
	"fmt"

	"github.com/stagedoor/stagedoor-backend/pkg/square"
)

// ChargeIntentRequest carries what the external processor needs to open a
// charge intent.
type ChargeIntentRequest struct {
	AmountCents int
	Currency    string
	PayerRef    string
	SourceID    string
	Note        string
	ReferenceID string
}

// ChargeIntent is the processor's handle for an in-flight charge. The
// asynchronous outcome webhook reports against IntentID.
type ChargeIntent struct {
	IntentID     string
	ClientSecret string
}

// RefundRequest asks the processor to reverse a settled charge.
type RefundRequest struct {
	ChargeRef   string
	AmountCents int
	Currency    string
	Reason      string
}

// SellerBalance is the processor-reported sub-balance for one seller. The
// engine caches it for display and never treats it as authoritative.
type SellerBalance struct {
	AvailableCents int
	PendingCents   int
	PayoutsEnabled bool
}

// WithdrawStatus is the processor's answer to a payout request.
type WithdrawStatus string

const (
	// WithdrawScheduled means the processor accepted the request and will
	// move the money on its own settlement schedule.
	WithdrawScheduled WithdrawStatus = "scheduled"
	// WithdrawOnboardingRequired means the seller account cannot receive
	// payouts yet; the caller surfaces this instead of completing.
	WithdrawOnboardingRequired WithdrawStatus = "onboarding_required"
)

// WithdrawRequest asks the processor to pay out a seller's available
// balance. A nil AmountCents withdraws the full available amount.
type WithdrawRequest struct {
	SellerRef   string
	AmountCents *int
}

// WithdrawOutcome reports what the processor did with a payout request.
type WithdrawOutcome struct {
	Status      WithdrawStatus
	PayoutRef   string
	AmountCents int
}

// Processor is the external payment processor contract the ledger depends on.
type Processor interface {
	CreateChargeIntent(ctx context.Context, req ChargeIntentRequest) (*ChargeIntent, error)
	RefundCharge(ctx context.Context, req RefundRequest) error
	SellerBalance(ctx context.Context, sellerRef string) (*SellerBalance, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*WithdrawOutcome, error)
}

// SquareProcessor adapts the Square client to the Processor contract.
type SquareProcessor struct {
	client *square.Client
}

// NewSquareProcessor wraps a configured Square client.
func NewSquareProcessor(client *square.Client) (*SquareProcessor, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareProcessor{client: client}, nil
}

func (p *SquareProcessor) CreateChargeIntent(ctx context.Context, req ChargeIntentRequest) (*ChargeIntent, error) {
	payment, err := p.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents: int64(req.AmountCents),
		Currency:    req.Currency,
		LocationID:  p.client.LocationID(),
		CustomerID:  req.PayerRef,
		SourceID:    req.SourceID,
		Note:        req.Note,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		return nil, err
	}
	intentID := ""
	if id := payment.GetID(); id != nil {
		intentID = *id
	}
	return &ChargeIntent{IntentID: intentID}, nil
}

func (p *SquareProcessor) RefundCharge(ctx context.Context, req RefundRequest) error {
	_, err := p.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:   req.ChargeRef,
		AmountCents: int64(req.AmountCents),
		Currency:    req.Currency,
		Reason:      req.Reason,
	})
	return err
}

// SellerBalance reports the processor-side sub-balance. The platform runs a
// single Square account, so seller money lives under the configured
// location; an unconfigured location means onboarding never finished and
// payouts stay disabled.
func (p *SquareProcessor) SellerBalance(ctx context.Context, sellerRef string) (*SellerBalance, error) {
	locationID := p.client.LocationID()
	if locationID == "" {
		return &SellerBalance{}, nil
	}
	account, err := p.client.SellerAccount(ctx, locationID)
	if err != nil {
		return nil, err
	}
	return &SellerBalance{
		AvailableCents: account.AvailableCents,
		PendingCents:   account.PendingCents,
		PayoutsEnabled: account.PayoutsEnabled,
	}, nil
}

// Withdraw acknowledges a payout request. Square initiates payouts on its
// own settlement schedule and offers no payout-creation endpoint, so an
// onboarded seller gets a scheduled outcome carrying the newest payout
// reference; a seller whose account cannot receive payouts gets the
// onboarding-required outcome instead.
func (p *SquareProcessor) Withdraw(ctx context.Context, req WithdrawRequest) (*WithdrawOutcome, error) {
	locationID := p.client.LocationID()
	if locationID == "" {
		return &WithdrawOutcome{Status: WithdrawOnboardingRequired}, nil
	}
	account, err := p.client.SellerAccount(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !account.PayoutsEnabled {
		return &WithdrawOutcome{Status: WithdrawOnboardingRequired}, nil
	}
	amount := account.AvailableCents
	if req.AmountCents != nil {
		amount = *req.AmountCents
	}
	return &WithdrawOutcome{
		Status:      WithdrawScheduled,
		PayoutRef:   account.LatestPayoutID,
		AmountCents: amount,
	}, nil
}
