package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/api/responses"
	"github.com/stagedoor/stagedoor-backend/api/validators"
	"github.com/stagedoor/stagedoor-backend/internal/payments"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// GetSellerBalance returns the caller's processor sub-balance snapshot.
func GetSellerBalance(svc payments.Balances, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.SellerBalance(r.Context(), caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSellerBalanceResponse(view))
	}
}

// WithdrawSellerBalance asks the processor to pay out the caller's available
// balance. A seller who has not finished onboarding gets the
// onboarding-required status instead of a payout.
func WithdrawSellerBalance(svc payments.Balances, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload withdrawRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Withdraw(r.Context(), caller, payload.AmountCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, withdrawResponse{
			Status:      string(result.Status),
			PayoutRef:   result.PayoutRef,
			AmountCents: result.AmountCents,
		})
	}
}

type withdrawRequest struct {
	AmountCents *int `json:"amount_cents"`
}

type sellerBalanceResponse struct {
	SellerID       uuid.UUID `json:"seller_id"`
	AvailableCents int       `json:"available_cents"`
	PendingCents   int       `json:"pending_cents"`
	PayoutsEnabled bool      `json:"payouts_enabled"`
	FetchedAt      time.Time `json:"fetched_at"`
}

type withdrawResponse struct {
	Status      string `json:"status"`
	PayoutRef   string `json:"payout_ref,omitempty"`
	AmountCents int    `json:"amount_cents"`
}

func newSellerBalanceResponse(view *payments.SellerBalanceView) sellerBalanceResponse {
	if view == nil {
		return sellerBalanceResponse{}
	}
	return sellerBalanceResponse{
		SellerID:       view.SellerID,
		AvailableCents: view.AvailableCents,
		PendingCents:   view.PendingCents,
		PayoutsEnabled: view.PayoutsEnabled,
		FetchedAt:      view.FetchedAt,
	}
}
