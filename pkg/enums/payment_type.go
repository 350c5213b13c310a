package enums

import "fmt"

// PaymentType classifies a payment ledger entry and selects the fee schedule
// and settlement behavior applied to it.
type PaymentType string

const (
	PaymentTypePrimaryPurchase PaymentType = "primary_purchase"
	PaymentTypeResalePurchase  PaymentType = "resale_purchase"
	PaymentTypeVendorPOS       PaymentType = "vendor_pos"
	PaymentTypeSubscription    PaymentType = "subscription"
	PaymentTypeFavorTicket     PaymentType = "favor_ticket_purchase"
	PaymentTypeProximitySale   PaymentType = "proximity_sale"
)

var validPaymentTypes = []PaymentType{
	PaymentTypePrimaryPurchase,
	PaymentTypeResalePurchase,
	PaymentTypeVendorPOS,
	PaymentTypeSubscription,
	PaymentTypeFavorTicket,
	PaymentTypeProximitySale,
}

// String implements fmt.Stringer.
func (p PaymentType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentType.
func (p PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentType converts raw input into a PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
