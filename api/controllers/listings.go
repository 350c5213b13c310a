package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/api/responses"
	"github.com/stagedoor/stagedoor-backend/api/validators"
	"github.com/stagedoor/stagedoor-backend/internal/resale"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
)

// CreateListing puts the caller's ticket up for resale.
func CreateListing(svc resale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resale service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createListingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, err := svc.CreateListing(r.Context(), resale.CreateListingInput{
			TicketID:   payload.TicketID,
			SellerID:   caller,
			PriceCents: payload.PriceCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newListingResponse(listing))
	}
}

func GetListing(svc resale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resale service unavailable"))
			return
		}
		listingID, err := uuidParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.Get(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newListingResponse(listing))
	}
}

func CancelListing(svc resale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resale service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuidParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.CancelListing(r.Context(), listingID, caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newListingResponse(listing))
	}
}

// PurchaseListing starts the resale purchase; ownership moves only when the
// processor confirms.
func PurchaseListing(svc resale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resale service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuidParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload purchaseListingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PurchaseListing(r.Context(), resale.PurchaseListingInput{
			ListingID:  listingID,
			BuyerID:    caller,
			BuyerEmail: callerEmail(r),
			SourceID:   payload.SourceID,
			PayerRef:   payload.PayerRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := purchaseResponse{}
		if result.Payment != nil {
			payment := newPaymentResponse(result.Payment)
			resp.Payment = &payment
		}
		if result.Intent != nil {
			resp.Intent = &intentResponse{IntentID: result.Intent.IntentID, ClientSecret: result.Intent.ClientSecret}
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func ListEventListings(svc resale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resale service unavailable"))
			return
		}
		eventID, err := uuidParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := queryLimit(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListActiveByEvent(r.Context(), eventID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newListingListResponse(rows))
	}
}

func ListMyListings(svc resale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resale service unavailable"))
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
		rows, err := svc.ListBySeller(r.Context(), caller, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newListingListResponse(rows))
	}
}

type createListingRequest struct {
	TicketID   uuid.UUID `json:"ticket_id" validate:"required"`
	PriceCents int       `json:"price_cents" validate:"gt=0"`
}

type purchaseListingRequest struct {
	SourceID string `json:"source_id"`
	PayerRef string `json:"payer_ref"`
}

type listingResponse struct {
	ID            uuid.UUID  `json:"id"`
	TicketID      uuid.UUID  `json:"ticket_id"`
	SellerID      uuid.UUID  `json:"seller_id"`
	PriceCents    int        `json:"price_cents"`
	Status        string     `json:"status"`
	RefundFlagged bool       `json:"refund_flagged"`
	SoldAt        *time.Time `json:"sold_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newListingResponse(listing *models.ResaleListing) listingResponse {
	if listing == nil {
		return listingResponse{}
	}
	return listingResponse{
		ID:            listing.ID,
		TicketID:      listing.TicketID,
		SellerID:      listing.SellerID,
		PriceCents:    listing.PriceCents,
		Status:        string(listing.Status),
		RefundFlagged: listing.RefundFlagged,
		SoldAt:        listing.SoldAt,
		CreatedAt:     listing.CreatedAt,
	}
}

func newListingListResponse(rows []models.ResaleListing) []listingResponse {
	out := make([]listingResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newListingResponse(&rows[i]))
	}
	return out
}
