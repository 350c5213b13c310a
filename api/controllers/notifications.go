package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/api/responses"
	"github.com/stagedoor/stagedoor-backend/internal/notifications"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// ListNotifications returns the caller's recent notifications.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification service unavailable"))
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
		rows, err := svc.List(r.Context(), caller, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]notificationResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newNotificationResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notificationID, err := uuidParam(r, "notificationID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.MarkRead(r.Context(), notificationID, caller); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification service unavailable"))
			return
		}
		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.MarkAllRead(r.Context(), caller); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

type notificationResponse struct {
	ID        uuid.UUID     `json:"id"`
	Type      string        `json:"type"`
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	Data      types.JSONMap `json:"data,omitempty"`
	ReadAt    *time.Time    `json:"read_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func newNotificationResponse(notification *models.Notification) notificationResponse {
	if notification == nil {
		return notificationResponse{}
	}
	return notificationResponse{
		ID:        notification.ID,
		Type:      string(notification.Type),
		Title:     notification.Title,
		Body:      notification.Body,
		Data:      notification.Data,
		ReadAt:    notification.ReadAt,
		CreatedAt: notification.CreatedAt,
	}
}
