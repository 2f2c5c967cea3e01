package postgres

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository"
)

type userRepo struct {
	db DB
}

func newUserRepo(db DB) repository.User {
	return &userRepo{
		db: db,
	}
}

func (r *userRepo) Create(ctx context.Context, user model.User) error {
	_, err := r.db.Exec(
		ctx,
		"INSERT INTO users(id, username, display_name, avatar_url) VALUES($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING",
		user.ID, user.Username, user.DisplayName, user.AvatarURL,
	)
	return err
}

func (r *userRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.QueryRow(ctx, "SELECT u.id, u.username, u.display_name, u.avatar_url FROM users u WHERE u.id = $1", id).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.AvatarURL,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}

// UpdateByID expects updates to be pre-filtered to known columns.
func (r *userRepo) UpdateByID(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	columns := make([]string, 0, len(updates))
	for column := range updates {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	query := "UPDATE users SET "
	args := []interface{}{}
	i := 1

	for _, column := range columns {
		query += (column + " = $" + strconv.Itoa(i) + ", ")
		args = append(args, updates[column])
		i++
	}

	query = query[:len(query)-2] + " WHERE id = $" + strconv.Itoa(i) + " RETURNING id"
	args = append(args, id)

	var returnedID uuid.UUID
	err := r.db.QueryRow(ctx, query, args...).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
