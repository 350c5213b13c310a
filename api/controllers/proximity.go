package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/api/responses"
	"github.com/stagedoor/stagedoor-backend/api/validators"
	"github.com/stagedoor/stagedoor-backend/internal/proximity"
	"github.com/stagedoor/stagedoor-backend/internal/staff"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// InitiateProximity opens a tap-to-pay handshake with a nearby customer.
// The caller must hold a vendor role on the event.
func InitiateProximity(svc proximity.Service, staffSvc staff.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || staffSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "proximity service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload initiateProximityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := staffSvc.RequireRole(r.Context(), payload.EventID, caller, enums.StaffRoleVendor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pending, err := svc.Initiate(r.Context(), proximity.InitiateInput{
			VendorID:     caller,
			CustomerID:   payload.CustomerID,
			EventID:      payload.EventID,
			TicketTypeID: payload.TicketTypeID,
			AmountCents:  payload.AmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPendingPaymentResponse(pending))
	}
}

func GetProximity(svc proximity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "proximity service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pendingID, err := uuidParam(r, "pendingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pending, err := svc.Get(r.Context(), pendingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if pending.VendorID != caller && pending.CustomerID != caller {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this handshake"))
			return
		}
		responses.WriteSuccess(w, newPendingPaymentResponse(pending))
	}
}

// ConfirmProximity is the customer's acceptance of the pending charge.
func ConfirmProximity(svc proximity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "proximity service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pendingID, err := uuidParam(r, "pendingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmProximityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), proximity.ConfirmInput{
			PendingID:     pendingID,
			CustomerID:    caller,
			CustomerEmail: callerEmail(r),
			SourceID:      payload.SourceID,
			PayerRef:      payload.PayerRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newConfirmProximityResponse(result))
	}
}

func CancelProximity(svc proximity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "proximity service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pendingID, err := uuidParam(r, "pendingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pending, err := svc.Cancel(r.Context(), pendingID, caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPendingPaymentResponse(pending))
	}
}

func ListProximityAsCustomer(svc proximity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "proximity service unavailable"))
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
		rows, err := svc.ListByCustomer(r.Context(), caller, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPendingPaymentListResponse(rows))
	}
}

func ListProximityAsVendor(svc proximity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "proximity service unavailable"))
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
		rows, err := svc.ListByVendor(r.Context(), caller, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPendingPaymentListResponse(rows))
	}
}

type initiateProximityRequest struct {
	CustomerID   uuid.UUID  `json:"customer_id" validate:"required"`
	EventID      uuid.UUID  `json:"event_id" validate:"required"`
	TicketTypeID *uuid.UUID `json:"ticket_type_id,omitempty"`
	AmountCents  int        `json:"amount_cents" validate:"gt=0"`
}

type confirmProximityRequest struct {
	SourceID string `json:"source_id"`
	PayerRef string `json:"payer_ref"`
}

type pendingPaymentResponse struct {
	ID           uuid.UUID  `json:"id"`
	VendorID     uuid.UUID  `json:"vendor_id"`
	CustomerID   uuid.UUID  `json:"customer_id"`
	EventID      uuid.UUID  `json:"event_id"`
	TicketTypeID *uuid.UUID `json:"ticket_type_id,omitempty"`
	AmountCents  int        `json:"amount_cents"`
	Status       string     `json:"status"`
	ExpiresAt    time.Time  `json:"expires_at"`
	PaymentID    *uuid.UUID `json:"payment_id,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type confirmProximityResponse struct {
	Pending pendingPaymentResponse `json:"pending"`
	Payment *paymentResponse       `json:"payment,omitempty"`
	Intent  *intentResponse        `json:"intent,omitempty"`
}

func newPendingPaymentResponse(pending *models.PendingPayment) pendingPaymentResponse {
	if pending == nil {
		return pendingPaymentResponse{}
	}
	return pendingPaymentResponse{
		ID:           pending.ID,
		VendorID:     pending.VendorID,
		CustomerID:   pending.CustomerID,
		EventID:      pending.EventID,
		TicketTypeID: pending.TicketTypeID,
		AmountCents:  pending.AmountCents,
		Status:       string(pending.Status),
		ExpiresAt:    pending.ExpiresAt,
		PaymentID:    pending.PaymentID,
		CompletedAt:  pending.CompletedAt,
		CreatedAt:    pending.CreatedAt,
	}
}

func newPendingPaymentListResponse(rows []models.PendingPayment) []pendingPaymentResponse {
	out := make([]pendingPaymentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newPendingPaymentResponse(&rows[i]))
	}
	return out
}

func newConfirmProximityResponse(result *proximity.ConfirmResult) confirmProximityResponse {
	if result == nil {
		return confirmProximityResponse{}
	}
	resp := confirmProximityResponse{Pending: newPendingPaymentResponse(result.Pending)}
	if result.Payment != nil {
		payment := newPaymentResponse(result.Payment)
		resp.Payment = &payment
	}
	if result.Intent != nil {
		resp.Intent = &intentResponse{IntentID: result.Intent.IntentID, ClientSecret: result.Intent.ClientSecret}
	}
	return resp
}
