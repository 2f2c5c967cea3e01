package model

import (
	"time"

	"github.com/google/uuid"
)

// MembershipGrant is owned by the team collaborator; it is keyed by
// (TeamID, UserID) and creating it twice is a no-op.
type MembershipGrant struct {
	TeamID   uuid.UUID `json:"team_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Team is the local copy of a team owned by the team service. Memberships can
// only be granted in teams that exist here.
type Team struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
