package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/api/responses"
	"github.com/stagedoor/stagedoor-backend/api/validators"
	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// LinkReferral attributes the caller to a referrer. The link is permanent
// and the benefit window starts now.
func LinkReferral(svc referrals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "referral service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload linkReferralRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		referral, err := svc.Link(r.Context(), payload.ReferrerID, caller, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReferralResponse(referral))
	}
}

// ListReferralEarnings returns the caller's accumulated revenue-share rows.
func ListReferralEarnings(svc referrals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "referral service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListEarnings(r.Context(), caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]referralEarningResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newReferralEarningResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type linkReferralRequest struct {
	ReferrerID uuid.UUID `json:"referrer_id" validate:"required"`
}

type referralResponse struct {
	ID         uuid.UUID `json:"id"`
	ReferrerID uuid.UUID `json:"referrer_id"`
	ReferredID uuid.UUID `json:"referred_id"`
	ReferredAt time.Time `json:"referred_at"`
}

type referralEarningResponse struct {
	ID                         uuid.UUID  `json:"id"`
	ReferredID                 uuid.UUID  `json:"referred_id"`
	PaymentID                  *uuid.UUID `json:"payment_id,omitempty"`
	DiscountPercentApplied     string     `json:"discount_percent_applied"`
	RevenueSharePercentApplied string     `json:"revenue_share_percent_applied"`
	ShareAmountCents           int        `json:"share_amount_cents"`
	CreatedAt                  time.Time  `json:"created_at"`
}

func newReferralResponse(referral *models.Referral) referralResponse {
	if referral == nil {
		return referralResponse{}
	}
	return referralResponse{
		ID:         referral.ID,
		ReferrerID: referral.ReferrerID,
		ReferredID: referral.ReferredID,
		ReferredAt: referral.ReferredAt,
	}
}

func newReferralEarningResponse(earning *models.ReferralEarning) referralEarningResponse {
	if earning == nil {
		return referralEarningResponse{}
	}
	return referralEarningResponse{
		ID:                         earning.ID,
		ReferredID:                 earning.ReferredID,
		PaymentID:                  earning.PaymentID,
		DiscountPercentApplied:     earning.DiscountPercentApplied.String(),
		RevenueSharePercentApplied: earning.RevenueSharePercentApplied.String(),
		ShareAmountCents:           earning.ShareAmountCents,
		CreatedAt:                  earning.CreatedAt,
	}
}
