package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/model"
)

// TeamStore registers teams in the MembershipStore it shares with the
// notification store.
type TeamStore struct {
	memberships *MembershipStore
}

func NewTeamStore(memberships *MembershipStore) *TeamStore {
	return &TeamStore{memberships: memberships}
}

func (s *TeamStore) Upsert(_ context.Context, team model.Team) error {
	s.memberships.AddTeam(team.ID)
	return nil
}

func (s *TeamStore) Delete(_ context.Context, id uuid.UUID) error {
	s.memberships.RemoveTeam(id)
	return nil
}
