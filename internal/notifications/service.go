package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// Service defines in-app notification operations.
type Service interface {
	Notify(ctx context.Context, input NotifyInput)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

// NotifyInput captures one fire-and-forget notification write.
type NotifyInput struct {
	UserID uuid.UUID
	Type   enums.NotificationType
	Title  string
	Body   string
	Data   types.JSONMap
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires a notification service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("notifications logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Notify writes the notification at-most-once. Failures are logged, never
// retried, and never propagate to the triggering operation.
func (s *service) Notify(ctx context.Context, input NotifyInput) {
	if input.UserID == uuid.Nil || !input.Type.IsValid() {
		s.logg.Warn(ctx, "dropping notification with invalid target or type")
		return
	}
	notification := &models.Notification{
		UserID: input.UserID,
		Type:   input.Type,
		Title:  input.Title,
		Body:   input.Body,
		Data:   input.Data,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"notification_type": input.Type,
			"user_id":           input.UserID,
		})
		s.logg.Error(ctx, "writing notification", err)
	}
}

func (s *service) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

func (s *service) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	if notificationID == uuid.Nil || userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id and user id are required")
	}
	affected, err := s.repo.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	_, err := s.repo.MarkAllRead(ctx, userID)
	return err
}
