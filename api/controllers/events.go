package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/api/responses"
	"github.com/stagedoor/stagedoor-backend/api/validators"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// CreateEvent registers a new event owned by the caller.
func CreateEvent(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload createEventRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.CreateEvent(r.Context(), tickets.CreateEventInput{
			OrganizerID: caller,
			Name:        payload.Name,
			Venue:       payload.Venue,
			StartsAt:    payload.StartsAt,
			EndsAt:      payload.EndsAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newEventResponse(event))
	}
}

func GetEvent(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
			return
		}
		eventID, err := uuidParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.GetEvent(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newEventResponse(event))
	}
}

// CreateTicketType adds a capacity tier to the caller's event.
func CreateTicketType(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
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
		eventID, err := uuidParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createTicketTypeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ticketType, err := svc.CreateTicketType(r.Context(), tickets.CreateTicketTypeInput{
			EventID:     eventID,
			OrganizerID: caller,
			Name:        payload.Name,
			PriceCents:  payload.PriceCents,
			MaxQuantity: payload.MaxQuantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTicketTypeResponse(ticketType))
	}
}

func ListTicketTypes(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
			return
		}
		eventID, err := uuidParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticketTypes, err := svc.ListTicketTypes(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]ticketTypeResponse, 0, len(ticketTypes))
		for i := range ticketTypes {
			out = append(out, newTicketTypeResponse(&ticketTypes[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// TicketTypeAvailability reports the tier's live capacity numbers.
func TicketTypeAvailability(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ticket service unavailable"))
			return
		}
		ticketTypeID, err := uuidParam(r, "ticketTypeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		availability, err := svc.ComputeAvailability(r.Context(), ticketTypeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}

type createEventRequest struct {
	Name     string     `json:"name" validate:"required"`
	Venue    *string    `json:"venue,omitempty"`
	StartsAt time.Time  `json:"starts_at" validate:"required"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

type createTicketTypeRequest struct {
	Name        string `json:"name" validate:"required"`
	PriceCents  int    `json:"price_cents" validate:"gte=0"`
	MaxQuantity *int   `json:"max_quantity,omitempty" validate:"omitempty,gt=0"`
}

type eventResponse struct {
	ID          uuid.UUID  `json:"id"`
	OrganizerID uuid.UUID  `json:"organizer_id"`
	Name        string     `json:"name"`
	Venue       *string    `json:"venue,omitempty"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ticketTypeResponse struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	Name        string    `json:"name"`
	PriceCents  int       `json:"price_cents"`
	MaxQuantity *int      `json:"max_quantity,omitempty"`
	SoldCount   int       `json:"sold_count"`
	IsActive    bool      `json:"is_active"`
}

func newEventResponse(event *models.Event) eventResponse {
	if event == nil {
		return eventResponse{}
	}
	return eventResponse{
		ID:          event.ID,
		OrganizerID: event.OrganizerID,
		Name:        event.Name,
		Venue:       event.Venue,
		StartsAt:    event.StartsAt,
		EndsAt:      event.EndsAt,
		CreatedAt:   event.CreatedAt,
	}
}

func newTicketTypeResponse(ticketType *models.TicketType) ticketTypeResponse {
	if ticketType == nil {
		return ticketTypeResponse{}
	}
	return ticketTypeResponse{
		ID:          ticketType.ID,
		EventID:     ticketType.EventID,
		Name:        ticketType.Name,
		PriceCents:  ticketType.PriceCents,
		MaxQuantity: ticketType.MaxQuantity,
		SoldCount:   ticketType.SoldCount,
		IsActive:    ticketType.IsActive,
	}
}
