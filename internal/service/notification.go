package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/teamflow/notification-service/internal/dto"
	"github.com/teamflow/notification-service/internal/metrics"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/rabbitmq"
	"github.com/teamflow/notification-service/internal/repository"
	"github.com/teamflow/notification-service/internal/repository/redisrepo"
	"go.uber.org/zap"
)

const maxTitleLength = 255

type notificationService struct {
	logger    *zap.Logger
	repo      *repository.Repository
	rdb       *redis.Client
	broker    Broker
	publisher Publisher
	resolver  InvitationResolver
	scheduler gocron.Scheduler
	opts      Options
}

type noopPublisher struct{}

func (noopPublisher) Publish(model.ChangeEvent) {}

func newNotificationService(logger *zap.Logger, repo *repository.Repository, rdb *redis.Client, broker Broker, publisher Publisher, resolver InvitationResolver, opts Options) *notificationService {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		panic(err)
	}

	if publisher == nil {
		publisher = noopPublisher{}
	}
	if opts.ReconcileBatch <= 0 {
		opts.ReconcileBatch = 100
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = time.Minute
	}

	return &notificationService{
		logger:    logger,
		repo:      repo,
		rdb:       rdb,
		broker:    broker,
		publisher: publisher,
		resolver:  resolver,
		scheduler: scheduler,
		opts:      opts,
	}
}

func validateCreate(input dto.CreateNotification) error {
	if input.RecipientID == uuid.Nil {
		return fmt.Errorf("%w: recipient_id is required", ErrInvalidNotification)
	}
	if !model.NotificationType(input.Type).Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, input.Type)
	}
	if input.Title == "" || len(input.Title) > maxTitleLength {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidNotification, maxTitleLength)
	}

	isInvitation := model.NotificationType(input.Type) == model.TypeProjectInvitation
	if isInvitation && (input.Invitation == nil || input.Invitation.TeamID == uuid.Nil) {
		return fmt.Errorf("%w: project invitation requires invitation.team_id", ErrInvalidNotification)
	}
	if !isInvitation && input.Invitation != nil {
		return fmt.Errorf("%w: only project invitations carry an invitation", ErrInvalidNotification)
	}
	return nil
}

func (s *notificationService) Create(ctx context.Context, input dto.CreateNotification) (*model.Notification, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	n := &model.Notification{
		ID:          uuid.New(),
		RecipientID: input.RecipientID,
		Type:        model.NotificationType(input.Type),
		Title:       input.Title,
		Message:     input.Message,
		ActionURL:   input.ActionURL,
		Data:        input.Data,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
	if input.RelatedProject != nil {
		n.RelatedProject = &model.RelatedProject{ID: input.RelatedProject.ID, Name: input.RelatedProject.Name}
	}
	if input.Invitation != nil {
		n.Invitation = &model.Invitation{TeamID: input.Invitation.TeamID, InvitedByUserID: input.Invitation.InvitedByUserID}
	}

	if err := s.repo.Notification.Create(ctx, n); err != nil {
		s.logger.Sugar().Errorf("failed to create %s notification for user(%s): %s", n.Type, n.RecipientID.String(), err.Error())
		return nil, ErrInternal
	}

	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	s.invalidateUnreadCount(ctx, n.RecipientID)
	s.publisher.Publish(model.NewChangeEvent(model.EventCreated, n))

	return n, nil
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID) ([]model.NotificationView, error) {
	notifications, err := s.repo.Notification.ListByRecipient(ctx, userID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to list user(%s)'s notifications: %s", userID.String(), err.Error())
		return nil, ErrInternal
	}

	views := make([]model.NotificationView, 0, len(notifications))
	for _, n := range notifications {
		views = append(views, n.View())
	}
	return views, nil
}

// UnreadCount is cached in redis. The count is only written back if no
// invalidation happened since before it was read from the store.
func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	key := redisrepo.UserUnreadCountKey(userID.String())
	genKey := redisrepo.UserUnreadCountGenerationKey(userID.String())

	cacheable := s.rdb != nil
	var gen int64
	if s.rdb != nil {
		cached, err := redisrepo.Get[int](s.rdb, ctx, key)
		if err == nil {
			return *cached, nil
		}
		if err != redis.Nil {
			s.logger.Sugar().Warnf("failed to get user(%s)'s unread count from redis: %s", userID.String(), err.Error())
		}

		gen, err = redisrepo.Generation(s.rdb, ctx, genKey)
		if err != nil {
			s.logger.Sugar().Warnf("failed to get user(%s)'s unread count generation: %s", userID.String(), err.Error())
			cacheable = false
		}
	}

	count, err := s.repo.Notification.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to count user(%s)'s unread notifications: %s", userID.String(), err.Error())
		return 0, ErrInternal
	}

	if cacheable {
		if _, err := redisrepo.SetJSONIfGeneration(s.rdb, ctx, key, genKey, gen, count, s.opts.CacheTTL); err != nil {
			s.logger.Sugar().Errorf("failed to set user(%s)'s unread count in redis cache: %s", userID.String(), err.Error())
		}
	}
	return count, nil
}

func (s *notificationService) invalidateUnreadCount(ctx context.Context, userID uuid.UUID) {
	if s.rdb == nil {
		return
	}
	key := redisrepo.UserUnreadCountKey(userID.String())
	genKey := redisrepo.UserUnreadCountGenerationKey(userID.String())
	if err := redisrepo.Invalidate(s.rdb, ctx, key, genKey); err != nil {
		s.logger.Sugar().Errorf("failed to invalidate user(%s)'s unread count: %s", userID.String(), err.Error())
	}
}

// getOwned loads a notification and checks it belongs to userID.
func (s *notificationService) getOwned(ctx context.Context, userID, notificationID uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.Notification.Get(ctx, notificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		s.logger.Sugar().Errorf("failed to get notification(%s): %s", notificationID.String(), err.Error())
		return nil, ErrInternal
	}
	if n.RecipientID != userID {
		return nil, ErrForbidden
	}
	return n, nil
}

func (s *notificationService) reload(ctx context.Context, notificationID uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.Notification.Get(ctx, notificationID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to reload notification(%s): %s", notificationID.String(), err.Error())
		return nil, ErrInternal
	}
	return n, nil
}

func (s *notificationService) storeError(op string, notificationID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrIllegalTransition):
		s.logger.Sugar().Errorf("%s on notification(%s) hit an illegal transition: %s", op, notificationID.String(), err.Error())
		return ErrBrokenInvariant
	}
	s.logger.Sugar().Errorf("failed to %s notification(%s): %s", op, notificationID.String(), err.Error())
	return ErrInternal
}

// markRead performs the false->true transition. When this call made it and
// publish is set, it emits the read event.
func (s *notificationService) markRead(ctx context.Context, notificationID uuid.UUID, publish bool) (model.MarkOutcome, *model.Notification, error) {
	changed, err := s.repo.Notification.CompareAndSetRead(ctx, notificationID, false, true)
	if err != nil {
		return "", nil, s.storeError("mark read", notificationID, err)
	}

	n, err := s.reload(ctx, notificationID)
	if err != nil {
		return "", nil, err
	}
	if !changed {
		metrics.NotificationMutations.WithLabelValues("mark_read", string(model.MarkNoOp)).Inc()
		return model.MarkNoOp, n, nil
	}

	metrics.NotificationMutations.WithLabelValues("mark_read", string(model.MarkUpdated)).Inc()
	if publish {
		s.publisher.Publish(model.NewChangeEvent(model.EventRead, n))
	}
	return model.MarkUpdated, n, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (model.MarkOutcome, *model.NotificationView, error) {
	n, err := s.getOwned(ctx, userID, notificationID)
	if err != nil {
		return "", nil, err
	}
	if n.IsRead {
		metrics.NotificationMutations.WithLabelValues("mark_read", string(model.MarkNoOp)).Inc()
		view := n.View()
		return model.MarkNoOp, &view, nil
	}

	outcome, n, err := s.markRead(ctx, notificationID, true)
	if err != nil {
		return "", nil, err
	}
	if outcome == model.MarkUpdated {
		s.invalidateUnreadCount(ctx, userID)
	}

	view := n.View()
	return outcome, &view, nil
}

// MarkAllRead applies the per-record transition to every unread notification
// of userID. There is no bulk transaction: records that fail are logged and
// skipped, and the count only includes transitions this call made.
func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	ids, err := s.repo.Notification.ListUnreadIDs(ctx, userID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to list user(%s)'s unread notifications: %s", userID.String(), err.Error())
		return 0, ErrInternal
	}

	updated := 0
	for _, id := range ids {
		outcome, _, err := s.markRead(ctx, id, true)
		if err != nil {
			if errors.Is(err, ErrBrokenInvariant) {
				return updated, err
			}
			if !errors.Is(err, ErrNotFound) {
				s.logger.Sugar().Warnf("skipping notification(%s) in mark all read for user(%s): %s", id.String(), userID.String(), err.Error())
			}
			continue
		}
		if outcome == model.MarkUpdated {
			updated++
		}
	}

	if updated > 0 {
		s.invalidateUnreadCount(ctx, userID)
	}
	return updated, nil
}

func (s *notificationService) AcceptInvitation(ctx context.Context, userID, notificationID uuid.UUID) (*AcceptResult, error) {
	n, err := s.getOwned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}
	if n.Type != model.TypeProjectInvitation || n.Invitation == nil {
		return nil, ErrInvalidType
	}

	resolution, err := s.resolver.Resolve(ctx, notificationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidType) {
			return nil, err
		}
		s.logger.Sugar().Errorf("failed to resolve invitation(%s): %s", notificationID.String(), err.Error())
		return nil, ErrInternal
	}

	if resolution.Result == model.Rejected {
		metrics.NotificationMutations.WithLabelValues("accept_invitation", string(model.Rejected)).Inc()
		if errors.Is(resolution.Reason, ErrGrantPending) {
			s.logger.Sugar().Warnf("user(%s) retried invitation(%s) while its membership grant is pending", userID.String(), notificationID.String())
		} else {
			s.invalidateUnreadCount(ctx, userID)
			s.reportUngranted(ctx, n, resolution.Reason)
		}
		return nil, &ExternalFailureError{NotificationID: notificationID, Reason: resolution.Reason}
	}

	// The accept transition marks the notification read itself; this only
	// repairs invitations accepted before it did. Its read event is folded
	// into the invitation_resolved event below.
	readOutcome, n, err := s.markRead(ctx, notificationID, false)
	if err != nil {
		return nil, err
	}

	outcome := model.AlreadyAccepted
	if resolution.Result == model.Granted {
		outcome = model.Accepted
	}
	metrics.NotificationMutations.WithLabelValues("accept_invitation", string(outcome)).Inc()

	// A retry that changed nothing has nothing new to tell other sessions.
	if resolution.Result == model.Granted || readOutcome == model.MarkUpdated {
		s.invalidateUnreadCount(ctx, userID)

		event := model.NewChangeEvent(model.EventInvitationResolved, n)
		event.Outcome = outcome
		s.publisher.Publish(event)
	}

	if outcome == model.Accepted {
		s.notifyInviter(ctx, n)
	}

	result := &AcceptResult{
		Outcome:      outcome,
		Project:      n.RelatedProject,
		Notification: n.View(),
	}
	return result, nil
}

// reportUngranted records an invitation that is accepted but whose grant was
// rejected. The accepted flag stays; the grant is flagged pending until
// reconciliation lands it.
func (s *notificationService) reportUngranted(ctx context.Context, n *model.Notification, reason error) {
	s.logger.Sugar().Errorf("invitation(%s) is accepted but granting user(%s) membership of team(%s) failed, needs reconciliation: %s", n.ID.String(), n.RecipientID.String(), n.Invitation.TeamID.String(), reason.Error())

	if _, err := s.repo.Notification.SetGrantPending(ctx, n.ID, true); err != nil {
		s.logger.Sugar().Errorf("failed to flag invitation(%s)'s grant as pending: %s", n.ID.String(), err.Error())
	}

	if s.broker == nil {
		return
	}
	msg := dto.MQMembershipReconcile{
		NotificationID: n.ID,
		TeamID:         n.Invitation.TeamID,
		UserID:         n.RecipientID,
		Reason:         reason.Error(),
		AcceptedAt:     time.Now().UTC(),
	}
	if err := s.broker.PublishJSON(ctx, rabbitmq.MEMBERSHIP_RECONCILE_QUEUE, msg); err != nil {
		s.logger.Sugar().Errorf("failed to publish reconcile request for invitation(%s): %s", n.ID.String(), err.Error())
	}
}

// notifyInviter tells whoever sent the invitation that it was accepted.
func (s *notificationService) notifyInviter(ctx context.Context, n *model.Notification) {
	inviterID := n.Invitation.InvitedByUserID
	if inviterID == uuid.Nil || inviterID == n.RecipientID {
		return
	}

	acceptedBy := n.RecipientID.String()
	if user, err := s.repo.User.FindByID(ctx, n.RecipientID); err == nil {
		acceptedBy = user.Name()
	}

	projectName := "the project"
	var project *dto.ProjectRef
	if n.RelatedProject != nil {
		project = &dto.ProjectRef{ID: n.RelatedProject.ID, Name: n.RelatedProject.Name}
		if n.RelatedProject.Name != "" {
			projectName = n.RelatedProject.Name
		}
	}

	_, err := s.Create(ctx, dto.CreateNotification{
		RecipientID:    inviterID,
		Type:           string(model.TypeSystem),
		Title:          "Project Invitation Accepted",
		Message:        fmt.Sprintf("%s has accepted the invitation to join %s.", acceptedBy, projectName),
		RelatedProject: project,
		Data: map[string]any{
			"accepted_by":         acceptedBy,
			"accepted_by_user_id": n.RecipientID.String(),
			"invitation_id":       n.ID.String(),
		},
	})
	if err != nil {
		s.logger.Sugar().Errorf("failed to notify inviter(%s) about accepted invitation(%s): %s", inviterID.String(), n.ID.String(), err.Error())
	}
}

// StartConsumingCreates turns messages on the notifications.create queue into
// notifications. Invalid messages are acked and dropped.
func (s *notificationService) StartConsumingCreates(ctx context.Context) {
	msgs, err := s.broker.Consume(rabbitmq.NOTIFICATIONS_CREATE_QUEUE)
	if err != nil {
		panic(err)
	}

	for msg := range msgs {
		var input dto.MQNotificationCreate
		if err := json.Unmarshal(msg.Body, &input); err != nil {
			s.logger.Sugar().Warnf("dropping undecodable notification create message: %s", err.Error())
			msg.Ack(false)
			continue
		}

		if _, err := s.Create(ctx, input); err != nil {
			if errors.Is(err, ErrInvalidNotification) {
				s.logger.Sugar().Warnf("dropping invalid notification for user(%s): %s", input.RecipientID.String(), err.Error())
				msg.Ack(false)
				continue
			}
			msg.Nack(false, true)
			continue
		}

		msg.Ack(false)
	}
}

// ReconcileGrants retries membership grants for accepted invitations that
// never got one. It returns how many grants it repaired. Each repair clears
// the pending flag and tells the recipient's sessions.
func (s *notificationService) ReconcileGrants(ctx context.Context) (int, error) {
	pending, err := s.repo.Notification.ListUngranted(ctx, s.opts.ReconcileBatch)
	if err != nil {
		s.logger.Sugar().Errorf("failed to list ungranted invitations: %s", err.Error())
		return 0, ErrInternal
	}

	repaired := 0
	for _, n := range pending {
		if _, err := s.repo.Membership.Grant(ctx, n.Invitation.TeamID, n.RecipientID); err != nil {
			metrics.MembershipGrants.WithLabelValues("reconcile", string(model.Rejected)).Inc()
			s.logger.Sugar().Warnf("reconcile grant for invitation(%s) still failing: %s", n.ID.String(), err.Error())
			continue
		}
		metrics.MembershipGrants.WithLabelValues("reconcile", string(model.Granted)).Inc()
		s.logger.Sugar().Infof("reconciled membership of user(%s) in team(%s) for invitation(%s)", n.RecipientID.String(), n.Invitation.TeamID.String(), n.ID.String())
		repaired++

		s.clearGrantPending(ctx, n.ID)
	}
	return repaired, nil
}

func (s *notificationService) clearGrantPending(ctx context.Context, notificationID uuid.UUID) {
	changed, err := s.repo.Notification.SetGrantPending(ctx, notificationID, false)
	if err != nil {
		s.logger.Sugar().Errorf("failed to clear invitation(%s)'s pending grant: %s", notificationID.String(), err.Error())
		return
	}
	if !changed {
		return
	}

	n, err := s.reload(ctx, notificationID)
	if err != nil {
		return
	}
	event := model.NewChangeEvent(model.EventInvitationResolved, n)
	event.Outcome = model.Accepted
	s.publisher.Publish(event)
}

func (s *notificationService) newReconcileGrantsJob() error {
	_, err := s.scheduler.NewJob(gocron.DurationJob(s.opts.ReconcileInterval), gocron.NewTask(func(ctx context.Context) {
		if _, err := s.ReconcileGrants(ctx); err != nil {
			s.logger.Sugar().Errorf("failed to reconcile membership grants: %s", err.Error())
		}
	}))
	return err
}

func (s *notificationService) StartJobs() error {
	if err := s.newReconcileGrantsJob(); err != nil {
		return err
	}

	s.scheduler.Start()
	return nil
}

func (s *notificationService) StopJobs() error {
	return s.scheduler.Shutdown()
}
