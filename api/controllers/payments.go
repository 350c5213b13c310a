package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/api/responses"
	"github.com/stagedoor/stagedoor-backend/api/validators"
	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// GetPayment returns one ledger entry to its payer or payee.
func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := uuidParam(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !partyToPayment(payment, caller) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this payment"))
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(payment))
	}
}

func ListMyPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := queryLimit(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListByPayer(r.Context(), caller, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]paymentResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newPaymentResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// RefundPayment reverses a completed payment. Only the receiving party may
// issue the refund; payments with no payee belong to their payer.
func RefundPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := uuidParam(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !refundAuthorized(payment, caller) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only the receiving party can refund this payment"))
			return
		}

		refunded, err := svc.Refund(r.Context(), paymentID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(refunded))
	}
}

func partyToPayment(payment *models.Payment, caller uuid.UUID) bool {
	if payment == nil {
		return false
	}
	if payment.PayerID == caller {
		return true
	}
	return payment.PayeeID != nil && *payment.PayeeID == caller
}

func refundAuthorized(payment *models.Payment, caller uuid.UUID) bool {
	if payment == nil {
		return false
	}
	if payment.PayeeID != nil {
		return *payment.PayeeID == caller
	}
	return payment.PayerID == caller
}

type refundRequest struct {
	Reason string `json:"reason"`
}

type paymentResponse struct {
	ID               uuid.UUID  `json:"id"`
	Type             string     `json:"type"`
	PayerID          uuid.UUID  `json:"payer_id"`
	PayeeID          *uuid.UUID `json:"payee_id,omitempty"`
	AmountCents      int        `json:"amount_cents"`
	PlatformFeeCents int        `json:"platform_fee_cents"`
	Status           string     `json:"status"`
	RefundedAt       *time.Time `json:"refunded_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type intentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

func newPaymentResponse(payment *models.Payment) paymentResponse {
	if payment == nil {
		return paymentResponse{}
	}
	return paymentResponse{
		ID:               payment.ID,
		Type:             string(payment.Type),
		PayerID:          payment.PayerID,
		PayeeID:          payment.PayeeID,
		AmountCents:      payment.AmountCents,
		PlatformFeeCents: payment.PlatformFeeCents,
		Status:           string(payment.Status),
		RefundedAt:       payment.RefundedAt,
		CreatedAt:        payment.CreatedAt,
	}
}
