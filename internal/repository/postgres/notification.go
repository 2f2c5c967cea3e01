package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository"
)

const notificationColumns = `n.id, n.recipient_id, n.type, n.title, n.message, n.project_id, n.project_name,
	n.invitation_team_id, n.invitation_invited_by, n.invitation_accepted, n.invitation_resolved_at,
	n.invitation_grant_pending, n.action_url, n.data, n.is_read, n.read_at, n.version, n.created_at`

type notificationRepo struct {
	db DB
}

func newNotificationRepo(db DB) repository.Notification {
	return &notificationRepo{
		db: db,
	}
}

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var (
		n           model.Notification
		typ         string
		projectID   *uuid.UUID
		projectName *string
		teamID      *uuid.UUID
		invitedBy   *uuid.UUID
		accepted    bool
		resolvedAt  *time.Time
		pending     bool
		data        []byte
	)
	if err := row.Scan(
		&n.ID, &n.RecipientID, &typ, &n.Title, &n.Message, &projectID, &projectName,
		&teamID, &invitedBy, &accepted, &resolvedAt,
		&pending, &n.ActionURL, &data, &n.IsRead, &n.ReadAt, &n.Version, &n.CreatedAt,
	); err != nil {
		return nil, err
	}

	n.Type = model.NotificationType(typ)
	if projectID != nil {
		n.RelatedProject = &model.RelatedProject{ID: *projectID}
		if projectName != nil {
			n.RelatedProject.Name = *projectName
		}
	}
	if teamID != nil {
		n.Invitation = &model.Invitation{
			TeamID:       *teamID,
			Accepted:     accepted,
			ResolvedAt:   resolvedAt,
			GrantPending: pending,
		}
		if invitedBy != nil {
			n.Invitation.InvitedByUserID = *invitedBy
		}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to decode notification(%s) data: %w", n.ID, err)
		}
	}

	return &n, nil
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}

	var projectID *uuid.UUID
	var projectName *string
	if n.RelatedProject != nil {
		projectID = &n.RelatedProject.ID
		projectName = &n.RelatedProject.Name
	}
	var teamID, invitedBy *uuid.UUID
	if n.Invitation != nil {
		teamID = &n.Invitation.TeamID
		invitedBy = &n.Invitation.InvitedByUserID
	}

	_, err = r.db.Exec(
		ctx,
		`
		INSERT INTO notifications(id, recipient_id, type, title, message, project_id, project_name,
			invitation_team_id, invitation_invited_by, action_url, data, is_read, version, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`,
		n.ID, n.RecipientID, string(n.Type), n.Title, n.Message, projectID, projectName,
		teamID, invitedBy, n.ActionURL, string(dataJSON), n.IsRead, n.Version, n.CreatedAt,
	)
	return err
}

func (r *notificationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, "SELECT "+notificationColumns+" FROM notifications n WHERE n.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return n, err
}

func (r *notificationRepo) ListByRecipient(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error) {
	rows, err := r.db.Query(
		ctx,
		"SELECT "+notificationColumns+`
		FROM notifications n
		WHERE n.recipient_id = $1
		ORDER BY n.created_at DESC, n.id DESC
		`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func collectNotifications(rows pgx.Rows) ([]*model.Notification, error) {
	notifications := []*model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepo) ListUnreadIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM notifications
		WHERE recipient_id = $1 AND is_read = FALSE
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *notificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE", userID).Scan(&count)
	return count, err
}

func (r *notificationRepo) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1)", id).Scan(&exists)
	return exists, err
}

func (r *notificationRepo) CompareAndSetRead(ctx context.Context, id uuid.UUID, expected, value bool) (bool, error) {
	if expected && !value {
		return false, repository.ErrIllegalTransition
	}

	if expected == value {
		var current bool
		err := r.db.QueryRow(ctx, "SELECT is_read FROM notifications WHERE id = $1", id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, repository.ErrNotFound
		}
		if err != nil {
			return false, err
		}
		return current == expected, nil
	}

	tag, err := r.db.Exec(
		ctx,
		"UPDATE notifications SET is_read = TRUE, read_at = NOW(), version = version + 1 WHERE id = $1 AND is_read = $2",
		id, expected,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

// CompareAndSetInvitationAccepted relies on the row lock taken by UPDATE:
// a concurrent second UPDATE re-evaluates the WHERE clause after the first
// commits and matches nothing.
func (r *notificationRepo) CompareAndSetInvitationAccepted(ctx context.Context, id uuid.UUID) (model.AcceptOutcome, error) {
	var version int64
	err := r.db.QueryRow(
		ctx,
		`UPDATE notifications SET invitation_accepted = TRUE, invitation_resolved_at = NOW(),
			is_read = TRUE, read_at = COALESCE(read_at, NOW()), version = version + 1
		WHERE id = $1 AND type = 'project_invitation' AND invitation_accepted = FALSE
		RETURNING version`,
		id,
	).Scan(&version)
	if err == nil {
		return model.Accepted, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	var typ string
	var accepted bool
	err = r.db.QueryRow(ctx, "SELECT type, invitation_accepted FROM notifications WHERE id = $1", id).Scan(&typ, &accepted)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if model.NotificationType(typ) != model.TypeProjectInvitation {
		return "", repository.ErrIllegalTransition
	}

	return model.AlreadyAccepted, nil
}

func (r *notificationRepo) SetGrantPending(ctx context.Context, id uuid.UUID, pending bool) (bool, error) {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE notifications SET invitation_grant_pending = $2, version = version + 1
		WHERE id = $1 AND invitation_accepted = TRUE AND invitation_grant_pending <> $2`,
		id, pending,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *notificationRepo) ListUngranted(ctx context.Context, limit int) ([]*model.Notification, error) {
	rows, err := r.db.Query(
		ctx,
		"SELECT "+notificationColumns+`
		FROM notifications n
		WHERE n.invitation_accepted = TRUE AND n.invitation_grant_pending = TRUE
		ORDER BY n.invitation_resolved_at
		LIMIT $1
		`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNotifications(rows)
}
