package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	TypeTaskAssigned      NotificationType = "task_assigned"
	TypeProjectInvitation NotificationType = "project_invitation"
	TypeMention           NotificationType = "mention"
	TypeSystem            NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case TypeTaskAssigned, TypeProjectInvitation, TypeMention, TypeSystem:
		return true
	}
	return false
}

type RelatedProject struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Invitation struct {
	TeamID          uuid.UUID  `json:"team_id"`
	InvitedByUserID uuid.UUID  `json:"invited_by_user_id"`
	Accepted        bool       `json:"accepted"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	// GrantPending is set while an accepted invitation waits for its
	// membership grant to be reconciled.
	GrantPending bool `json:"grant_pending,omitempty"`
}

// Notification is the stored record. Only IsRead, ReadAt, Version and the
// invitation's Accepted/ResolvedAt/GrantPending change after creation; all but
// GrantPending only move forward.
type Notification struct {
	ID             uuid.UUID
	RecipientID    uuid.UUID
	Type           NotificationType
	Title          string
	Message        string
	RelatedProject *RelatedProject
	Invitation     *Invitation
	ActionURL      string
	Data           map[string]any
	IsRead         bool
	ReadAt         *time.Time
	Version        int64
	CreatedAt      time.Time
}

type InvitationState string

const (
	InvitationNone     InvitationState = "none"
	InvitationPending  InvitationState = "pending"
	InvitationAccepted InvitationState = "accepted"
)

func (n *Notification) InvitationState() InvitationState {
	if n.Invitation == nil {
		return InvitationNone
	}
	if n.Invitation.Accepted {
		return InvitationAccepted
	}
	return InvitationPending
}

// Clone returns a deep copy so callers can hand records out without sharing
// the mutable fields.
func (n *Notification) Clone() *Notification {
	c := *n
	if n.RelatedProject != nil {
		p := *n.RelatedProject
		c.RelatedProject = &p
	}
	if n.Invitation != nil {
		inv := *n.Invitation
		if n.Invitation.ResolvedAt != nil {
			t := *n.Invitation.ResolvedAt
			inv.ResolvedAt = &t
		}
		c.Invitation = &inv
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		c.ReadAt = &t
	}
	if n.Data != nil {
		c.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			c.Data[k] = v
		}
	}
	return &c
}

func (n *Notification) View() NotificationView {
	c := n.Clone()
	return NotificationView{
		ID:         c.ID,
		Type:       c.Type,
		Title:      c.Title,
		Message:    c.Message,
		Project:    c.RelatedProject,
		Invitation: c.Invitation,
		ActionURL:  c.ActionURL,
		Data:       c.Data,
		IsRead:     c.IsRead,
		ReadAt:     c.ReadAt,
		Version:    c.Version,
		CreatedAt:  c.CreatedAt,
	}
}

// NotificationView is the recipient-facing wire shape.
type NotificationView struct {
	ID         uuid.UUID        `json:"id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Project    *RelatedProject  `json:"project"`
	Invitation *Invitation      `json:"invitation"`
	ActionURL  string           `json:"action_url,omitempty"`
	Data       map[string]any   `json:"data,omitempty"`
	IsRead     bool             `json:"is_read"`
	ReadAt     *time.Time       `json:"read_at"`
	Version    int64            `json:"version"`
	CreatedAt  time.Time        `json:"created_at"`
}

func (v NotificationView) Clone() NotificationView {
	n := Notification{
		ID:             v.ID,
		Type:           v.Type,
		Title:          v.Title,
		Message:        v.Message,
		RelatedProject: v.Project,
		Invitation:     v.Invitation,
		ActionURL:      v.ActionURL,
		Data:           v.Data,
		IsRead:         v.IsRead,
		ReadAt:         v.ReadAt,
		Version:        v.Version,
		CreatedAt:      v.CreatedAt,
	}
	return n.View()
}
