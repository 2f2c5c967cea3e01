package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/model"
)

var (
	ErrNotFound          = errors.New("notification not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrTeamNotFound      = errors.New("team not found")
	ErrIllegalTransition = errors.New("illegal notification state transition")
)

// Notification is the system of record for notifications. The two
// CompareAndSet methods are single atomic conditional updates on one record;
// they never lock more than that record. Accepting an invitation also marks
// it read in the same update.
type Notification interface {
	Create(ctx context.Context, n *model.Notification) error
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	ListByRecipient(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error)
	ListUnreadIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	CompareAndSetRead(ctx context.Context, id uuid.UUID, expected, value bool) (bool, error)
	CompareAndSetInvitationAccepted(ctx context.Context, id uuid.UUID) (model.AcceptOutcome, error)
	// SetGrantPending flips the flag on an accepted invitation and reports
	// whether it changed.
	SetGrantPending(ctx context.Context, id uuid.UUID, pending bool) (bool, error)
	// ListUngranted returns accepted invitations whose grant is flagged
	// pending, oldest first.
	ListUngranted(ctx context.Context, limit int) ([]*model.Notification, error)
}

// Membership is the team collaborator's grant surface.
type Membership interface {
	// Grant is an idempotent upsert keyed by (teamID, userID); created reports
	// whether this call inserted the row.
	Grant(ctx context.Context, teamID, userID uuid.UUID) (created bool, err error)
}

// Team is fed by the team service's events; notification creation never
// registers teams.
type Team interface {
	// Upsert creates the team or renames it.
	Upsert(ctx context.Context, team model.Team) error
	// Delete removes the team and its memberships.
	Delete(ctx context.Context, id uuid.UUID) error
}

type User interface {
	Create(ctx context.Context, user model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateByID(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
}

type Repository struct {
	Notification Notification
	Membership   Membership
	Team         Team
	User         User
}
