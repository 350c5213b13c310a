package payments

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// Metadata keys carried on payment rows. Settlement reads these to locate
// the dependent entities a confirmed payment must mutate.
const (
	MetaEventID          = "event_id"
	MetaTicketTypeID     = "ticket_type_id"
	MetaListingID        = "listing_id"
	MetaOfferID          = "offer_id"
	MetaPendingPaymentID = "pending_payment_id"
	MetaCashSaleID       = "cash_sale_id"
	MetaBuyerEmail       = "buyer_email"
	MetaTicketMode       = "ticket_mode"
	MetaDeliveryMethod   = "delivery_method"

	metaReferrerID      = "referral_referrer_id"
	metaReferredID      = "referral_referred_id"
	metaDiscountPercent = "referral_discount_percent"
	metaSharePercent    = "referral_share_percent"
	metaShareCents      = "referral_share_cents"
)

// MetadataString extracts a string value from payment metadata.
func MetadataString(m types.JSONMap, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	raw, ok := m[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	return value, ok
}

// MetadataUUID extracts a UUID value from payment metadata.
func MetadataUUID(m types.JSONMap, key string) (uuid.UUID, bool) {
	value, ok := MetadataString(m, key)
	if !ok {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

// MetadataInt extracts an integer value from payment metadata. JSON decoding
// turns numbers into float64, so both representations are accepted.
func MetadataInt(m types.JSONMap, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch value := m[key].(type) {
	case int:
		return value, true
	case int64:
		return int(value), true
	case float64:
		return int(value), true
	default:
		return 0, false
	}
}

// ReferralMetadata serializes a referral snapshot into payment metadata so
// settlement can write the audit row with the exact percentages in effect at
// charge time.
func ReferralMetadata(m types.JSONMap, snapshot *referrals.Context, shareCents int) types.JSONMap {
	if m == nil {
		m = types.JSONMap{}
	}
	if snapshot == nil {
		return m
	}
	m[metaReferrerID] = snapshot.ReferrerID.String()
	m[metaReferredID] = snapshot.ReferredID.String()
	m[metaDiscountPercent] = snapshot.DiscountPercent.String()
	m[metaSharePercent] = snapshot.RevenueSharePercent.String()
	m[metaShareCents] = shareCents
	return m
}

func referralFromMetadata(m types.JSONMap) (*referrals.Context, int, error) {
	referrerID, ok := MetadataUUID(m, metaReferrerID)
	if !ok {
		return nil, 0, nil
	}
	referredID, ok := MetadataUUID(m, metaReferredID)
	if !ok {
		return nil, 0, fmt.Errorf("referral metadata missing referred id")
	}
	discountRaw, _ := MetadataString(m, metaDiscountPercent)
	discount, err := decimal.NewFromString(discountRaw)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid referral discount %q: %w", discountRaw, err)
	}
	shareRaw, _ := MetadataString(m, metaSharePercent)
	share, err := decimal.NewFromString(shareRaw)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid referral share %q: %w", shareRaw, err)
	}
	shareCents, _ := MetadataInt(m, metaShareCents)
	return &referrals.Context{
		ReferrerID:          referrerID,
		ReferredID:          referredID,
		DiscountPercent:     discount,
		RevenueSharePercent: share,
	}, shareCents, nil
}
