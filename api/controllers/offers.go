package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/api/responses"
	"github.com/stagedoor/stagedoor-backend/api/validators"
	"github.com/stagedoor/stagedoor-backend/internal/offers"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// CreateOffer extends a ticket grant to an email address.
func CreateOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offer service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mode := enums.TicketModePrivate
		if payload.Mode != "" {
			parsed, err := enums.ParseTicketMode(payload.Mode)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ticket mode"))
				return
			}
			mode = parsed
		}

		offer, err := svc.CreateOffer(r.Context(), offers.CreateOfferInput{
			EventID:        payload.EventID,
			TicketTypeID:   payload.TicketTypeID,
			OrganizerID:    caller,
			RecipientEmail: payload.RecipientEmail,
			RecipientID:    payload.RecipientID,
			PriceCents:     payload.PriceCents,
			Mode:           mode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOfferResponse(offer))
	}
}

func GetOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offer service unavailable"))
			return
		}
		offerID, err := uuidParam(r, "offerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offer, err := svc.Get(r.Context(), offerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOfferResponse(offer))
	}
}

// AcceptOffer resolves a pending offer into a ticket. Paid offers answer
// with the in-flight payment instead of the minted ticket.
func AcceptOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offer service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := uuidParam(r, "offerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload acceptOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AcceptOffer(r.Context(), offers.AcceptOfferInput{
			OfferID:     offerID,
			CallerID:    caller,
			CallerEmail: callerEmail(r),
			SkipFee:     payload.SkipFee,
			SourceID:    payload.SourceID,
			PayerRef:    payload.PayerRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAcceptOfferResponse(result))
	}
}

func DeclineOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offer service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := uuidParam(r, "offerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offer, err := svc.DeclineOffer(r.Context(), offerID, caller, callerEmail(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOfferResponse(offer))
	}
}

func CancelOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offer service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := uuidParam(r, "offerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offer, err := svc.CancelOffer(r.Context(), offerID, caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOfferResponse(offer))
	}
}

// LinkOffers attaches offers addressed to the caller's email to their
// identity and reports how many were linked.
func LinkOffers(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offer service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		email := callerEmail(r)
		if email == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "caller email is required"))
			return
		}
		linked, err := svc.LinkAndNotifyOnSignup(r.Context(), email, caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"linked": linked})
	}
}

func ListSentOffers(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offer service unavailable"))
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
		rows, err := svc.ListByOrganizer(r.Context(), caller, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOfferListResponse(rows))
	}
}

func ListReceivedOffers(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offer service unavailable"))
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
		rows, err := svc.ListByRecipient(r.Context(), caller, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOfferListResponse(rows))
	}
}

type createOfferRequest struct {
	EventID        uuid.UUID  `json:"event_id" validate:"required"`
	TicketTypeID   *uuid.UUID `json:"ticket_type_id,omitempty"`
	RecipientEmail string     `json:"recipient_email" validate:"required,email"`
	RecipientID    *uuid.UUID `json:"recipient_id,omitempty"`
	PriceCents     int        `json:"price_cents" validate:"gte=0"`
	Mode           string     `json:"mode,omitempty"`
}

type acceptOfferRequest struct {
	SkipFee  bool   `json:"skip_fee"`
	SourceID string `json:"source_id"`
	PayerRef string `json:"payer_ref"`
}

type offerResponse struct {
	ID             uuid.UUID  `json:"id"`
	EventID        uuid.UUID  `json:"event_id"`
	TicketTypeID   *uuid.UUID `json:"ticket_type_id,omitempty"`
	OrganizerID    uuid.UUID  `json:"organizer_id"`
	RecipientEmail string     `json:"recipient_email"`
	RecipientID    *uuid.UUID `json:"recipient_id,omitempty"`
	PriceCents     int        `json:"price_cents"`
	Mode           string     `json:"mode"`
	Status         string     `json:"status"`
	ExpiresAt      time.Time  `json:"expires_at"`
	TicketID       *uuid.UUID `json:"ticket_id,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type acceptOfferResponse struct {
	Offer   offerResponse    `json:"offer"`
	Ticket  *ticketResponse  `json:"ticket,omitempty"`
	Payment *paymentResponse `json:"payment,omitempty"`
	Intent  *intentResponse  `json:"intent,omitempty"`
}

func newOfferResponse(offer *models.TicketOffer) offerResponse {
	if offer == nil {
		return offerResponse{}
	}
	return offerResponse{
		ID:             offer.ID,
		EventID:        offer.EventID,
		TicketTypeID:   offer.TicketTypeID,
		OrganizerID:    offer.OrganizerID,
		RecipientEmail: offer.RecipientEmail,
		RecipientID:    offer.RecipientID,
		PriceCents:     offer.PriceCents,
		Mode:           string(offer.Mode),
		Status:         string(offer.Status),
		ExpiresAt:      offer.ExpiresAt,
		TicketID:       offer.TicketID,
		ResolvedAt:     offer.ResolvedAt,
		CreatedAt:      offer.CreatedAt,
	}
}

func newOfferListResponse(rows []models.TicketOffer) []offerResponse {
	out := make([]offerResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newOfferResponse(&rows[i]))
	}
	return out
}

func newAcceptOfferResponse(result *offers.AcceptOfferResult) acceptOfferResponse {
	if result == nil {
		return acceptOfferResponse{}
	}
	resp := acceptOfferResponse{Offer: newOfferResponse(result.Offer)}
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
