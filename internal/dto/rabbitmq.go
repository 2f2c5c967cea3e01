package dto

import (
	"time"

	"github.com/google/uuid"
)

type MQUserCreated struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
}

type MQTeamCreated struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type MQTeamDeleted struct {
	ID uuid.UUID `json:"id"`
}

// MQNotificationCreate is what producers (task board, invite issuance) put on
// the notifications.create queue. It has the same shape as the HTTP body.
type MQNotificationCreate = CreateNotification

type MQMembershipReconcile struct {
	NotificationID uuid.UUID `json:"notification_id"`
	TeamID         uuid.UUID `json:"team_id"`
	UserID         uuid.UUID `json:"user_id"`
	Reason         string    `json:"reason"`
	AcceptedAt     time.Time `json:"accepted_at"`
}
