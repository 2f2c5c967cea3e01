package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/metrics"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository"
	"go.uber.org/zap"
)

// Resolution carries Reason only when Result is model.Rejected.
type Resolution struct {
	Result model.ResolveResult
	Reason error
}

type invitationResolver struct {
	logger        *zap.Logger
	notifications repository.Notification
	memberships   repository.Membership
}

func newInvitationResolver(logger *zap.Logger, repo *repository.Repository) *invitationResolver {
	return &invitationResolver{
		logger:        logger,
		notifications: repo.Notification,
		memberships:   repo.Membership,
	}
}

// Resolve flips the accepted flag through the store's compare-and-set and
// only the caller that wins it grants membership. Losers return
// AlreadyGranted without touching membership, which is what makes retried
// and duplicated accepts safe. A loser that finds the winner's grant still
// pending reconciliation is Rejected with ErrGrantPending instead.
func (r *invitationResolver) Resolve(ctx context.Context, notificationID uuid.UUID) (Resolution, error) {
	n, err := r.notifications.Get(ctx, notificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Resolution{}, ErrNotFound
		}
		return Resolution{}, err
	}
	if n.Invitation == nil {
		return Resolution{}, ErrInvalidType
	}

	outcome, err := r.notifications.CompareAndSetInvitationAccepted(ctx, notificationID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return Resolution{}, ErrNotFound
		case errors.Is(err, repository.ErrIllegalTransition):
			return Resolution{}, ErrInvalidType
		}
		return Resolution{}, err
	}

	if outcome == model.AlreadyAccepted {
		if n.Invitation.GrantPending {
			metrics.MembershipGrants.WithLabelValues("accept", "pending").Inc()
			return Resolution{Result: model.Rejected, Reason: ErrGrantPending}, nil
		}
		metrics.MembershipGrants.WithLabelValues("accept", string(model.AlreadyGranted)).Inc()
		return Resolution{Result: model.AlreadyGranted}, nil
	}

	created, err := r.memberships.Grant(ctx, n.Invitation.TeamID, n.RecipientID)
	if err != nil {
		metrics.MembershipGrants.WithLabelValues("accept", string(model.Rejected)).Inc()
		return Resolution{Result: model.Rejected, Reason: err}, nil
	}
	if !created {
		r.logger.Sugar().Infof("user(%s) was already a member of team(%s) when invitation(%s) was accepted", n.RecipientID.String(), n.Invitation.TeamID.String(), notificationID.String())
	}

	metrics.MembershipGrants.WithLabelValues("accept", string(model.Granted)).Inc()
	return Resolution{Result: model.Granted}, nil
}
