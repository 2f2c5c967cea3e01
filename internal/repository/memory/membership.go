package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository"
)

type membershipKey struct {
	teamID uuid.UUID
	userID uuid.UUID
}

type MembershipStore struct {
	mu     sync.Mutex
	teams  map[uuid.UUID]struct{}
	grants map[membershipKey]model.MembershipGrant
}

func NewMembershipStore() *MembershipStore {
	return &MembershipStore{
		teams:  make(map[uuid.UUID]struct{}),
		grants: make(map[membershipKey]model.MembershipGrant),
	}
}

func (s *MembershipStore) AddTeam(teamID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[teamID] = struct{}{}
}

func (s *MembershipStore) RemoveTeam(teamID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.teams, teamID)
	for key := range s.grants {
		if key.teamID == teamID {
			delete(s.grants, key)
		}
	}
}

func (s *MembershipStore) Grant(_ context.Context, teamID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[teamID]; !ok {
		return false, repository.ErrTeamNotFound
	}
	key := membershipKey{teamID: teamID, userID: userID}
	if _, ok := s.grants[key]; ok {
		return false, nil
	}
	s.grants[key] = model.MembershipGrant{
		TeamID:   teamID,
		UserID:   userID,
		Role:     "member",
		JoinedAt: time.Now().UTC(),
	}
	return true, nil
}

func (s *MembershipStore) Has(teamID, userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.grants[membershipKey{teamID: teamID, userID: userID}]
	return ok
}

func (s *MembershipStore) Grants() []model.MembershipGrant {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants := make([]model.MembershipGrant, 0, len(s.grants))
	for _, g := range s.grants {
		grants = append(grants, g)
	}
	return grants
}
