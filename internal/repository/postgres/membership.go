package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/teamflow/notification-service/internal/repository"
)

const foreignKeyViolation = "23503"

type membershipRepo struct {
	db DB
}

func newMembershipRepo(db DB) repository.Membership {
	return &membershipRepo{
		db: db,
	}
}

func (r *membershipRepo) Grant(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(
		ctx,
		"INSERT INTO team_memberships(team_id, user_id, role) VALUES($1, $2, 'member') ON CONFLICT (team_id, user_id) DO NOTHING",
		teamID, userID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return false, repository.ErrTeamNotFound
		}
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}
