package dto

import "github.com/google/uuid"

type ProjectRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type InvitationRef struct {
	TeamID          uuid.UUID `json:"team_id"`
	InvitedByUserID uuid.UUID `json:"invited_by_user_id"`
}

type CreateNotification struct {
	RecipientID    uuid.UUID      `json:"recipient_id"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	RelatedProject *ProjectRef    `json:"related_project"`
	Invitation     *InvitationRef `json:"invitation"`
	ActionURL      string         `json:"action_url"`
	Data           map[string]any `json:"data"`
}
