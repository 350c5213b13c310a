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

// PurchaseTicket opens the primary-sale flow for one tier. A paid tier
// answers with the in-flight payment; a free tier answers with the ticket.
func PurchaseTicket(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload purchaseTicketRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Purchase(r.Context(), tickets.PurchaseInput{
			TicketTypeID: payload.TicketTypeID,
			BuyerID:      caller,
			BuyerEmail:   callerEmail(r),
			SourceID:     payload.SourceID,
			PayerRef:     payload.PayerRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPurchaseResponse(result))
	}
}

func ListMyTickets(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
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
		owned, err := svc.ListByOwner(r.Context(), caller, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTicketListResponse(owned))
	}
}

// GetTicket returns one ticket to its owner or to event staff.
func GetTicket(svc tickets.Service, staffSvc staff.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticketID, err := uuidParam(r, "ticketID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticket, err := svc.Get(r.Context(), ticketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ticket.OwnerID != caller {
			if err := staffSvc.RequireRole(r.Context(), ticket.EventID, caller); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, newTicketResponse(ticket))
	}
}

// CheckInTicket marks admission. Ushers and the organizer may scan.
func CheckInTicket(svc tickets.Service, staffSvc staff.Service, logg *logger.Logger) http.HandlerFunc {
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
		ticketID, err := uuidParam(r, "ticketID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticket, err := svc.Get(r.Context(), ticketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := staffSvc.RequireRole(r.Context(), ticket.EventID, caller, enums.StaffRoleUsher); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		checked, err := svc.CheckIn(r.Context(), ticketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTicketResponse(checked))
	}
}

func CancelTicket(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticketID, err := uuidParam(r, "ticketID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticket, err := svc.Cancel(r.Context(), ticketID, caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTicketResponse(ticket))
	}
}

// IssueTransferToken hands the owner a short-lived transfer credential.
func IssueTransferToken(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticketID, err := uuidParam(r, "ticketID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, expiresAt, err := svc.IssueTransferToken(r.Context(), ticketID, caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transferTokenResponse{Token: token, ExpiresAt: expiresAt})
	}
}

// RedeemTransferToken moves the ticket to the caller.
func RedeemTransferToken(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload redeemTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ticket, err := svc.RedeemTransferToken(r.Context(), payload.Token, caller, callerEmail(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTicketResponse(ticket))
	}
}

type purchaseTicketRequest struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id" validate:"required"`
	SourceID     string    `json:"source_id"`
	PayerRef     string    `json:"payer_ref"`
}

type redeemTransferRequest struct {
	Token string `json:"token" validate:"required"`
}

type transferTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ticketResponse struct {
	ID                uuid.UUID  `json:"id"`
	EventID           uuid.UUID  `json:"event_id"`
	TicketTypeID      *uuid.UUID `json:"ticket_type_id,omitempty"`
	OwnerID           uuid.UUID  `json:"owner_id"`
	Status            string     `json:"status"`
	Mode              string     `json:"mode"`
	ListingStatus     string     `json:"listing_status"`
	ListingPriceCents *int       `json:"listing_price_cents,omitempty"`
	PaymentMethod     string     `json:"payment_method"`
	DeliveryMethod    string     `json:"delivery_method"`
	CheckedInAt       *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type purchaseResponse struct {
	Ticket  *ticketResponse  `json:"ticket,omitempty"`
	Payment *paymentResponse `json:"payment,omitempty"`
	Intent  *intentResponse  `json:"intent,omitempty"`
}

func newTicketResponse(ticket *models.Ticket) ticketResponse {
	if ticket == nil {
		return ticketResponse{}
	}
	return ticketResponse{
		ID:                ticket.ID,
		EventID:           ticket.EventID,
		TicketTypeID:      ticket.TicketTypeID,
		OwnerID:           ticket.OwnerID,
		Status:            string(ticket.Status),
		Mode:              string(ticket.Mode),
		ListingStatus:     string(ticket.ListingStatus),
		ListingPriceCents: ticket.ListingPriceCents,
		PaymentMethod:     string(ticket.PaymentMethod),
		DeliveryMethod:    string(ticket.DeliveryMethod),
		CheckedInAt:       ticket.CheckedInAt,
		CreatedAt:         ticket.CreatedAt,
	}
}

func newTicketListResponse(owned []models.Ticket) []ticketResponse {
	out := make([]ticketResponse, 0, len(owned))
	for i := range owned {
		out = append(out, newTicketResponse(&owned[i]))
	}
	return out
}

func newPurchaseResponse(result *tickets.PurchaseResult) purchaseResponse {
	if result == nil {
		return purchaseResponse{}
	}
	resp := purchaseResponse{}
	if result.Ticket != nil {
		ticket := newTicketResponse(result.Ticket)
		resp.Ticket = &ticket
	}
	if result.Payment != nil {
		payment := newPaymentResponse(result.Payment)
		resp.Payment = &payment
	}
	if result.Intent != nil {
		resp.Intent = &intentResponse{IntentID: result.Intent.IntentID, ClientSecret: result.Intent.ClientSecret}
	}
	return resp
}
