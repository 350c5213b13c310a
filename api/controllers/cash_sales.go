package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/api/responses"
	"github.com/stagedoor/stagedoor-backend/api/validators"
	"github.com/stagedoor/stagedoor-backend/internal/staff"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// RecordCashSale logs an in-person cash collection. Vendors and the
// organizer may record sales for their event.
func RecordCashSale(svc tickets.Service, staffSvc staff.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || staffSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := uuidParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := staffSvc.RequireRole(r.Context(), eventID, caller, enums.StaffRoleVendor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload recordCashSaleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RecordCashSale(r.Context(), tickets.CashSaleInput{
			EventID:       eventID,
			TicketTypeID:  payload.TicketTypeID,
			SellerID:      caller,
			CustomerID:    payload.CustomerID,
			CustomerEmail: payload.CustomerEmail,
			AmountCents:   payload.AmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCashSaleResultResponse(result))
	}
}

type recordCashSaleRequest struct {
	TicketTypeID  uuid.UUID  `json:"ticket_type_id" validate:"required"`
	CustomerID    *uuid.UUID `json:"customer_id,omitempty"`
	CustomerEmail string     `json:"customer_email,omitempty" validate:"omitempty,email"`
	AmountCents   int        `json:"amount_cents" validate:"gt=0"`
}

type cashSaleResponse struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"event_id"`
	SellerID    uuid.UUID  `json:"seller_id"`
	TicketID    *uuid.UUID `json:"ticket_id,omitempty"`
	AmountCents int        `json:"amount_cents"`
	FeeCents    int        `json:"fee_cents"`
	FeeCharged  bool       `json:"fee_charged"`
	FeeError    *string    `json:"fee_error,omitempty"`
	CollectedAt time.Time  `json:"collected_at"`
}

type cashSaleResultResponse struct {
	Sale       cashSaleResponse `json:"sale"`
	Ticket     *ticketResponse  `json:"ticket,omitempty"`
	FeePayment *paymentResponse `json:"fee_payment,omitempty"`
}

func newCashSaleResponse(sale *models.CashSale) cashSaleResponse {
	if sale == nil {
		return cashSaleResponse{}
	}
	return cashSaleResponse{
		ID:          sale.ID,
		EventID:     sale.EventID,
		SellerID:    sale.SellerID,
		TicketID:    sale.TicketID,
		AmountCents: sale.AmountCents,
		FeeCents:    sale.FeeCents,
		FeeCharged:  sale.FeeCharged,
		FeeError:    sale.FeeError,
		CollectedAt: sale.CollectedAt,
	}
}

func newCashSaleResultResponse(result *tickets.CashSaleResult) cashSaleResultResponse {
	if result == nil {
		return cashSaleResultResponse{}
	}
	resp := cashSaleResultResponse{Sale: newCashSaleResponse(result.Sale)}
	if result.Ticket != nil {
		ticket := newTicketResponse(result.Ticket)
		resp.Ticket = &ticket
	}
	if result.FeePayment != nil {
		payment := newPaymentResponse(result.FeePayment)
		resp.FeePayment = &payment
	}
	return resp
}
