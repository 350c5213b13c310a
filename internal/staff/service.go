package staff

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/internal/notifications"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// GrantInput assigns a working role on one event to a user.
type GrantInput struct {
	EventID   uuid.UUID
	UserID    uuid.UUID
	Role      enums.StaffRole
	GrantedBy uuid.UUID
}

// Service manages event staff rosters and role checks.
type Service interface {
	Grant(ctx context.Context, input GrantInput) (*models.EventStaff, error)
	Revoke(ctx context.Context, eventID, userID, callerID uuid.UUID) error
	HasRole(ctx context.Context, eventID, userID uuid.UUID, roles ...enums.StaffRole) (bool, error)
	RequireRole(ctx context.Context, eventID, userID uuid.UUID, roles ...enums.StaffRole) error
	ListByEvent(ctx context.Context, eventID, callerID uuid.UUID) ([]models.EventStaff, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.EventStaff, error)
}

type service struct {
	repo          Repository
	tickets       tickets.Service
	notifications notifications.Service
	logg          *logger.Logger
}

// ServiceParams configure the staff service.
type ServiceParams struct {
	Repo          Repository
	Tickets       tickets.Service
	Notifications notifications.Service
	Logger        *logger.Logger
}

// NewService wires the staff service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("staff repository required")
	}
	if params.Tickets == nil {
		return nil, fmt.Errorf("staff tickets service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("staff notifications service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("staff logger required")
	}
	return &service{
		repo:          params.Repo,
		tickets:       params.Tickets,
		notifications: params.Notifications,
		logg:          params.Logger,
	}, nil
}

// Grant adds a user to the event roster. Only the event organizer can grant,
// and the unique index decides a concurrent double grant.
func (s *service) Grant(ctx context.Context, input GrantInput) (*models.EventStaff, error) {
	if input.UserID == uuid.Nil || input.GrantedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and granting user are required")
	}
	if !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid staff role %q", input.Role))
	}
	event, err := s.tickets.GetEvent(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != input.GrantedBy {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the organizer can grant staff roles")
	}

	grant := &models.EventStaff{
		EventID:   input.EventID,
		UserID:    input.UserID,
		Role:      input.Role,
		GrantedBy: input.GrantedBy,
	}
	if err := s.repo.Create(ctx, grant); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user already has a role on this event")
		}
		return nil, err
	}

	s.notifications.Notify(ctx, notifications.NotifyInput{
		UserID: input.UserID,
		Type:   enums.NotificationTypeStaffGranted,
		Title:  "Staff role granted",
		Body:   fmt.Sprintf("You were added as %s for %s.", grant.Role, event.Name),
		Data:   types.JSONMap{"event_id": event.ID.String(), "role": string(grant.Role)},
	})
	return grant, nil
}

// Revoke removes a non-organizer grant from the roster.
func (s *service) Revoke(ctx context.Context, eventID, userID, callerID uuid.UUID) error {
	event, err := s.tickets.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.OrganizerID != callerID {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "only the organizer can revoke staff roles")
	}
	affected, err := s.repo.Revoke(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no revocable grant for this user")
	}
	return nil
}

// HasRole reports whether the user holds one of the roles on the event. The
// event organizer implicitly holds every role.
func (s *service) HasRole(ctx context.Context, eventID, userID uuid.UUID, roles ...enums.StaffRole) (bool, error) {
	event, err := s.tickets.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	if event.OrganizerID == userID {
		return true, nil
	}
	grant, err := s.repo.Find(ctx, eventID, userID)
	if err != nil {
		return false, err
	}
	if grant == nil {
		return false, nil
	}
	if len(roles) == 0 {
		return true, nil
	}
	for _, role := range roles {
		if grant.Role == role {
			return true, nil
		}
	}
	return false, nil
}

// RequireRole is HasRole with a FORBIDDEN error on the miss.
func (s *service) RequireRole(ctx context.Context, eventID, userID uuid.UUID, roles ...enums.StaffRole) error {
	allowed, err := s.HasRole(ctx, eventID, userID, roles...)
	if err != nil {
		return err
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff role required for this action")
	}
	return nil
}

func (s *service) ListByEvent(ctx context.Context, eventID, callerID uuid.UUID) ([]models.EventStaff, error) {
	if err := s.RequireRole(ctx, eventID, callerID); err != nil {
		return nil, err
	}
	return s.repo.ListByEvent(ctx, eventID)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.EventStaff, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}
