package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/dto"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/rabbitmq"
	"github.com/teamflow/notification-service/internal/repository"
	"go.uber.org/zap"
)

// teamService mirrors the teams published by the team service. Accepting an
// invitation can only grant membership in a team known here.
type teamService struct {
	logger *zap.Logger
	repo   *repository.Repository
	broker Broker
}

func newTeamService(logger *zap.Logger, repo *repository.Repository, broker Broker) *teamService {
	return &teamService{
		logger: logger,
		repo:   repo,
		broker: broker,
	}
}

func (s *teamService) StartCreating(ctx context.Context) {
	msgs, err := s.broker.ConsumeExchange(rabbitmq.TEAMS_CREATED_EXCHANGE)
	if err != nil {
		panic(err)
	}

	for msg := range msgs {
		var created dto.MQTeamCreated
		if err := json.Unmarshal(msg.Body, &created); err != nil || created.ID == uuid.Nil {
			msg.Ack(false)
			continue
		}

		if err := s.repo.Team.Upsert(ctx, model.Team{ID: created.ID, Name: created.Name}); err != nil {
			s.logger.Sugar().Errorf("failed to create team(%s): %s", created.ID.String(), err.Error())
			msg.Nack(false, true)
			continue
		}

		msg.Ack(false)
	}
}

func (s *teamService) StartDeleting(ctx context.Context) {
	msgs, err := s.broker.ConsumeExchange(rabbitmq.TEAMS_DELETED_EXCHANGE)
	if err != nil {
		panic(err)
	}

	for msg := range msgs {
		var deleted dto.MQTeamDeleted
		if err := json.Unmarshal(msg.Body, &deleted); err != nil || deleted.ID == uuid.Nil {
			msg.Ack(false)
			continue
		}

		if err := s.repo.Team.Delete(ctx, deleted.ID); err != nil {
			s.logger.Sugar().Errorf("failed to delete team(%s): %s", deleted.ID.String(), err.Error())
			msg.Nack(false, true)
			continue
		}

		msg.Ack(false)
	}
}
