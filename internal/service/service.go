package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/teamflow/notification-service/internal/dto"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository"
	"go.uber.org/zap"
)

// Publisher receives every change event the service emits.
type Publisher interface {
	Publish(event model.ChangeEvent)
}

type Broker interface {
	Consume(queue string) (<-chan amqp.Delivery, error)
	ConsumeExchange(exchange string) (<-chan amqp.Delivery, error)
	PublishJSON(ctx context.Context, queue string, v any) error
}

type AcceptResult struct {
	Outcome      model.AcceptOutcome    `json:"outcome"`
	Project      *model.RelatedProject  `json:"project"`
	Notification model.NotificationView `json:"notification"`
}

type Notification interface {
	Create(ctx context.Context, input dto.CreateNotification) (*model.Notification, error)
	List(ctx context.Context, userID uuid.UUID) ([]model.NotificationView, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (model.MarkOutcome, *model.NotificationView, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
	AcceptInvitation(ctx context.Context, userID, notificationID uuid.UUID) (*AcceptResult, error)
	ReconcileGrants(ctx context.Context) (int, error)
	StartConsumingCreates(ctx context.Context)
	StartJobs() error
	StopJobs() error
}

type InvitationResolver interface {
	Resolve(ctx context.Context, notificationID uuid.UUID) (Resolution, error)
}

type User interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	StartCreating(ctx context.Context)
	StartUpdating(ctx context.Context)
}

type Team interface {
	StartCreating(ctx context.Context)
	StartDeleting(ctx context.Context)
}

type Options struct {
	CacheTTL          time.Duration
	ReconcileInterval time.Duration
	ReconcileBatch    int
}

type Service struct {
	Notification Notification
	Invitation   InvitationResolver
	Team         Team
	User         User
}

// New wires the services. rdb and broker may be nil: the unread-count cache
// and the MQ side effects are then skipped.
func New(logger *zap.Logger, repo *repository.Repository, rdb *redis.Client, broker Broker, publisher Publisher, opts Options) *Service {
	resolver := newInvitationResolver(logger, repo)
	return &Service{
		Notification: newNotificationService(logger, repo, rdb, broker, publisher, resolver, opts),
		Invitation:   resolver,
		Team:         newTeamService(logger, repo, broker),
		User:         newUserService(logger, repo, broker),
	}
}
