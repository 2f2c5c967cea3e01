package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]model.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uuid.UUID]model.User)}
}

func (s *UserStore) Create(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		s.users[user.ID] = user
	}
	return nil
}

func (s *UserStore) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (s *UserStore) UpdateByID(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil
	}
	for field, value := range updates {
		switch field {
		case "username":
			if v, ok := value.(string); ok {
				user.Username = v
			}
		case "display_name":
			if v, ok := value.(string); ok {
				user.DisplayName = &v
			}
		case "avatar_url":
			if v, ok := value.(string); ok {
				user.AvatarURL = &v
			}
		}
	}
	s.users[id] = user
	return nil
}
