package payments

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/pkg/config"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
)

// Schedule is the platform fee schedule in effect for one computation. It is
// built once from configuration and injected, never read from a live global.
type Schedule struct {
	ServiceFeePercent  decimal.Decimal
	ResaleFeePercent   decimal.Decimal
	CashFeePercent     decimal.Decimal
	PublicMintFeeCents int
	Currency           string
}

// NewSchedule parses the configured percentages into exact decimals.
func NewSchedule(cfg config.FeesConfig) (Schedule, error) {
	service, err := decimal.NewFromString(cfg.ServiceFeePercent)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid service fee percent %q: %w", cfg.ServiceFeePercent, err)
	}
	resale, err := decimal.NewFromString(cfg.ResaleFeePercent)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid resale fee percent %q: %w", cfg.ResaleFeePercent, err)
	}
	cash, err := decimal.NewFromString(cfg.CashFeePercent)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cash fee percent %q: %w", cfg.CashFeePercent, err)
	}
	if cfg.PublicMintFeeCents < 0 {
		return Schedule{}, fmt.Errorf("public mint fee must not be negative")
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	return Schedule{
		ServiceFeePercent:  service,
		ResaleFeePercent:   resale,
		CashFeePercent:     cash,
		PublicMintFeeCents: cfg.PublicMintFeeCents,
		Currency:           currency,
	}, nil
}

// Breakdown is the result of one fee computation. All amounts are cents.
type Breakdown struct {
	BaseAmountCents    int
	DiscountCents      int
	EffectiveBaseCents int
	PlatformFeeCents   int
	TotalChargeCents   int
	SellerPayoutCents  int
	ReferralShareCents int
	Referral           *referrals.Context
}

// Compute derives the fee breakdown for a payment. It is a pure function of
// the payment type, the base amount, and the buyer's referral snapshot.
//
// primary_purchase, favor_ticket_purchase, and proximity_sale follow the same
// rules: an active referral discounts the
// effective base before the service fee applies; the referrer's share is a
// percentage of the platform fee. resale_purchase: the buyer pays exactly the
// listed price and the flat resale fee comes out of the seller's payout.
// vendor_pos: the fee is computed on the cash amount but charged separately
// to the organizer, so it never inflates the transaction itself.
func (s Schedule) Compute(paymentType enums.PaymentType, baseAmountCents int, referral *referrals.Context) (Breakdown, error) {
	if !paymentType.IsValid() {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment type %q", paymentType))
	}
	if baseAmountCents < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "base amount must not be negative")
	}

	base := decimal.NewFromInt(int64(baseAmountCents))
	breakdown := Breakdown{
		BaseAmountCents:    baseAmountCents,
		EffectiveBaseCents: baseAmountCents,
		Referral:           referral,
	}

	switch paymentType {
	case enums.PaymentTypePrimaryPurchase, enums.PaymentTypeFavorTicket, enums.PaymentTypeProximitySale:
		effective := base
		if referral != nil {
			discount := base.Mul(referral.DiscountPercent).Round(0)
			effective = base.Sub(discount)
			breakdown.DiscountCents = int(discount.IntPart())
		}
		fee := effective.Mul(s.ServiceFeePercent).Round(0)
		breakdown.EffectiveBaseCents = int(effective.IntPart())
		breakdown.PlatformFeeCents = int(fee.IntPart())
		breakdown.TotalChargeCents = breakdown.EffectiveBaseCents + breakdown.PlatformFeeCents
		if referral != nil {
			share := fee.Mul(referral.RevenueSharePercent).Round(0)
			breakdown.ReferralShareCents = int(share.IntPart())
		}

	case enums.PaymentTypeResalePurchase:
		fee := base.Mul(s.ResaleFeePercent).Round(0)
		breakdown.PlatformFeeCents = int(fee.IntPart())
		breakdown.TotalChargeCents = baseAmountCents
		breakdown.SellerPayoutCents = baseAmountCents - breakdown.PlatformFeeCents

	case enums.PaymentTypeVendorPOS:
		fee := base.Mul(s.CashFeePercent).Round(0)
		breakdown.PlatformFeeCents = int(fee.IntPart())
		breakdown.TotalChargeCents = baseAmountCents

	case enums.PaymentTypeSubscription:
		breakdown.TotalChargeCents = baseAmountCents
	}

	return breakdown, nil
}
