package model

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventCreated            EventKind = "created"
	EventRead               EventKind = "read"
	EventInvitationResolved EventKind = "invitation_resolved"
)

// ChangeEvent is pushed to the recipient's live sessions. Version is the
// notification's version after the change; receivers drop anything not newer
// than what they already hold.
type ChangeEvent struct {
	Kind           EventKind         `json:"kind"`
	RecipientID    uuid.UUID         `json:"recipient_id"`
	NotificationID uuid.UUID         `json:"notification_id"`
	Version        int64             `json:"version"`
	Notification   *NotificationView `json:"notification,omitempty"`
	Outcome        AcceptOutcome     `json:"outcome,omitempty"`
	At             time.Time         `json:"at"`
}

func NewChangeEvent(kind EventKind, n *Notification) ChangeEvent {
	view := n.View()
	return ChangeEvent{
		Kind:           kind,
		RecipientID:    n.RecipientID,
		NotificationID: n.ID,
		Version:        n.Version,
		Notification:   &view,
		At:             time.Now().UTC(),
	}
}
