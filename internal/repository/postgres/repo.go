package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teamflow/notification-service/internal/config"
	"github.com/teamflow/notification-service/internal/repository"
)

// DB is the subset of *pgxpool.Pool the repos use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

func New(db DB) *repository.Repository {
	return &repository.Repository{
		Notification: newNotificationRepo(db),
		Membership:   newMembershipRepo(db),
		Team:         newTeamRepo(db),
		User:         newUserRepo(db),
	}
}
