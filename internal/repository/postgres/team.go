package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository"
)

type teamRepo struct {
	db DB
}

func newTeamRepo(db DB) repository.Team {
	return &teamRepo{
		db: db,
	}
}

func (r *teamRepo) Upsert(ctx context.Context, team model.Team) error {
	_, err := r.db.Exec(
		ctx,
		"INSERT INTO teams(id, name) VALUES($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name",
		team.ID, team.Name,
	)
	return err
}

// Delete cascades to team_memberships.
func (r *teamRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, "DELETE FROM teams WHERE id = $1", id)
	return err
}
