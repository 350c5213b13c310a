package square

import (
	"context"
	"errors"
	"strings"

	sq "github.com/square/square-go-sdk"
)

var errLocationRequired = errors.New("square location id is required")

// SellerAccount is the snapshot of seller money sitting with Square for one
// location. Square exposes no direct balance endpoint, so the snapshot is
// derived from the payout feed: deposits still in transit (SENT) count as
// pending, and failed payouts count as available because their funds return
// to the Square balance and linger there until the next sweep. With
// automatic transfers enabled that returned money is the only balance that
// outlives a settlement day.
type SellerAccount struct {
	AvailableCents int
	PendingCents   int
	PayoutsEnabled bool
	LatestPayoutID string
}

// SellerAccount fetches the location standing and the first page of its
// payout feed. One page is enough: the feed is newest-first and only
// in-flight or recently failed payouts contribute to the snapshot.
func (c *Client) SellerAccount(ctx context.Context, locationID string) (*SellerAccount, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return nil, errLocationRequired
	}
	c.log(ctx, "request", "seller_account", map[string]any{
		"location_id": locationID,
	})

	locResp, err := c.sdk.Locations.Get(ctx, &sq.GetLocationsRequest{LocationID: locationID})
	if err != nil {
		c.log(ctx, "error", "seller_account", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "get location")
	}

	account := &SellerAccount{
		PayoutsEnabled: payoutsEnabled(locResp.GetLocation()),
	}

	page, err := c.sdk.Payouts.List(ctx, &sq.ListPayoutsRequest{
		LocationID: ptrString(locationID),
	})
	if err != nil {
		c.log(ctx, "error", "seller_account", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "list payouts")
	}
	for _, payout := range page.Results {
		if payout == nil {
			continue
		}
		if account.LatestPayoutID == "" {
			account.LatestPayoutID = payout.GetID()
		}
		status := payout.GetStatus()
		if status == nil {
			continue
		}
		switch *status {
		case sq.PayoutStatusSent:
			account.PendingCents += payoutCents(payout)
		case sq.PayoutStatusFailed:
			account.AvailableCents += payoutCents(payout)
		}
	}

	c.log(ctx, "response", "seller_account", map[string]any{
		"payouts_enabled": account.PayoutsEnabled,
		"pending_cents":   account.PendingCents,
		"available_cents": account.AvailableCents,
	})
	return account, nil
}

func payoutsEnabled(location *sq.Location) bool {
	if location == nil {
		return false
	}
	status := location.GetStatus()
	if status == nil || *status != sq.LocationStatusActive {
		return false
	}
	for _, capability := range location.GetCapabilities() {
		if capability == sq.LocationCapabilityCreditCardProcessing {
			return true
		}
	}
	return false
}

// payoutCents reads the payout amount; deposits are positive, withdrawals
// negative, so the magnitude is what the balance view reports.
func payoutCents(payout *sq.Payout) int {
	money := payout.GetAmountMoney()
	if money == nil || money.GetAmount() == nil {
		return 0
	}
	amount := *money.GetAmount()
	if amount < 0 {
		amount = -amount
	}
	return int(amount)
}
