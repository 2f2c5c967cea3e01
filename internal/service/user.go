package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/dto"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/rabbitmq"
	"github.com/teamflow/notification-service/internal/repository"
	"go.uber.org/zap"
)

var userUpdatableFields = map[string]struct{}{
	"username":     {},
	"display_name": {},
	"avatar_url":   {},
}

// userService mirrors the users published by the account service, so
// notification text can name people without calling it.
type userService struct {
	logger *zap.Logger
	repo   *repository.Repository
	broker Broker
}

func newUserService(logger *zap.Logger, repo *repository.Repository, broker Broker) *userService {
	return &userService{
		logger: logger,
		repo:   repo,
		broker: broker,
	}
}

func (s *userService) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.User.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		s.logger.Sugar().Errorf("failed to find user(%s): %s", id.String(), err.Error())
		return nil, ErrInternal
	}
	return user, nil
}

func (s *userService) updateByID(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	for field := range updates {
		if _, ok := userUpdatableFields[field]; !ok {
			delete(updates, field)
		}
	}
	if len(updates) == 0 {
		return nil
	}

	return s.repo.User.UpdateByID(ctx, id, updates)
}

func (s *userService) StartCreating(ctx context.Context) {
	msgs, err := s.broker.ConsumeExchange(rabbitmq.USERS_CREATED_EXCHANGE)
	if err != nil {
		panic(err)
	}

	for msg := range msgs {
		var created dto.MQUserCreated
		if err := json.Unmarshal(msg.Body, &created); err != nil || created.ID == uuid.Nil {
			msg.Ack(false)
			continue
		}

		if err := s.repo.User.Create(ctx, model.User{
			ID:          created.ID,
			Username:    created.Username,
			DisplayName: created.DisplayName,
			AvatarURL:   created.AvatarURL,
		}); err != nil {
			s.logger.Sugar().Errorf("failed to create user(%s): %s", created.ID.String(), err.Error())
		}

		msg.Ack(false)
	}
}

func (s *userService) StartUpdating(ctx context.Context) {
	msgs, err := s.broker.ConsumeExchange(rabbitmq.USERS_UPDATE_EXCHANGE)
	if err != nil {
		panic(err)
	}

	for msg := range msgs {
		var updates map[string]interface{}
		if err := json.Unmarshal(msg.Body, &updates); err != nil {
			msg.Ack(false)
			continue
		}

		userIDString, ok := updates["user_id"].(string)
		if !ok {
			msg.Ack(false)
			continue
		}
		userID, err := uuid.Parse(userIDString)
		if err != nil {
			msg.Ack(false)
			continue
		}
		delete(updates, "user_id")

		if err := s.updateByID(ctx, userID, updates); err != nil {
			s.logger.Sugar().Errorf("failed to update user(%s): %s", userID.String(), err.Error())
		}

		msg.Ack(false)
	}
}
