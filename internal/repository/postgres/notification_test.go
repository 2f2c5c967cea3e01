package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestNotificationRepo_CompareAndSetRead(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("transitions unread to read", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE notifications SET is_read = TRUE`).
			WithArgs(id, false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := newNotificationRepo(mock).CompareAndSetRead(ctx, id, false, true)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already read reports false", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE notifications SET is_read = TRUE`).
			WithArgs(id, false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := newNotificationRepo(mock).CompareAndSetRead(ctx, id, false, true)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE notifications SET is_read = TRUE`).
			WithArgs(id, false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := newNotificationRepo(mock).CompareAndSetRead(ctx, id, false, true)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("read to unread is refused without touching the db", func(t *testing.T) {
		mock := newMock(t)

		_, err := newNotificationRepo(mock).CompareAndSetRead(ctx, id, true, false)
		assert.ErrorIs(t, err, repository.ErrIllegalTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expected equals value only compares", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT is_read FROM notifications`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"is_read"}).AddRow(true))

		ok, err := newNotificationRepo(mock).CompareAndSetRead(ctx, id, true, true)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestNotificationRepo_CompareAndSetInvitationAccepted(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("first caller wins", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE notifications SET invitation_accepted = TRUE, invitation_resolved_at = NOW\(\), is_read = TRUE, read_at = COALESCE\(read_at, NOW\(\)\), version = version \+ 1`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(2)))

		outcome, err := newNotificationRepo(mock).CompareAndSetInvitationAccepted(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.Accepted, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already accepted", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE notifications SET invitation_accepted = TRUE`).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`SELECT type, invitation_accepted FROM notifications`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"type", "invitation_accepted"}).AddRow("project_invitation", true))

		outcome, err := newNotificationRepo(mock).CompareAndSetInvitationAccepted(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.AlreadyAccepted, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not an invitation", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE notifications SET invitation_accepted = TRUE`).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`SELECT type, invitation_accepted FROM notifications`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"type", "invitation_accepted"}).AddRow("mention", false))

		_, err := newNotificationRepo(mock).CompareAndSetInvitationAccepted(ctx, id)
		assert.ErrorIs(t, err, repository.ErrIllegalTransition)
	})

	t.Run("unknown id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE notifications SET invitation_accepted = TRUE`).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`SELECT type, invitation_accepted FROM notifications`).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err := newNotificationRepo(mock).CompareAndSetInvitationAccepted(ctx, id)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("db failure is passed through", func(t *testing.T) {
		mock := newMock(t)
		boom := errors.New("connection reset")
		mock.ExpectQuery(`UPDATE notifications SET invitation_accepted = TRUE`).
			WithArgs(id).
			WillReturnError(boom)

		_, err := newNotificationRepo(mock).CompareAndSetInvitationAccepted(ctx, id)
		assert.ErrorIs(t, err, boom)
	})
}

func TestNotificationRepo_Create(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), "project_invitation", "Join", "join us", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "", "{}", false, int64(1), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := newNotificationRepo(mock).Create(context.Background(), &model.Notification{
		ID:          uuid.New(),
		RecipientID: uuid.New(),
		Type:        model.TypeProjectInvitation,
		Title:       "Join",
		Message:     "join us",
		Invitation:  &model.Invitation{TeamID: uuid.New(), InvitedByUserID: uuid.New()},
		Version:     1,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepo_Get_NotFound(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`FROM notifications n WHERE n.id`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := newNotificationRepo(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestNotificationRepo_ListUnreadIDs(t *testing.T) {
	mock := newMock(t)
	userID := uuid.New()
	first, second := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT id FROM notifications`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(first).AddRow(second))

	ids, err := newNotificationRepo(mock).ListUnreadIDs(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
}

func TestNotificationRepo_CountUnread(t *testing.T) {
	mock := newMock(t)
	userID := uuid.New()
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := newNotificationRepo(mock).CountUnread(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMembershipRepo_Grant(t *testing.T) {
	ctx := context.Background()
	teamID, userID := uuid.New(), uuid.New()

	tests := []struct {
		name        string
		result      pgconn.CommandTag
		err         error
		wantCreated bool
		wantErr     error
	}{
		{name: "inserted", result: pgxmock.NewResult("INSERT", 1), wantCreated: true},
		{name: "duplicate is a no-op", result: pgxmock.NewResult("INSERT", 0), wantCreated: false},
		{name: "team gone", err: &pgconn.PgError{Code: foreignKeyViolation}, wantErr: repository.ErrTeamNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec(`INSERT INTO team_memberships`).WithArgs(teamID, userID)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(tt.result)
			}

			created, err := newMembershipRepo(mock).Grant(ctx, teamID, userID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, created)
		})
	}
}

func TestNotificationRepo_CreateOnlyInsertsTheNotification(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`^\s*INSERT INTO notifications`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), "project_invitation", "Join", "join us", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "", "{}", false, int64(1), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := newNotificationRepo(mock).Create(context.Background(), &model.Notification{
		ID:          uuid.New(),
		RecipientID: uuid.New(),
		Type:        model.TypeProjectInvitation,
		Title:       "Join",
		Message:     "join us",
		Invitation:  &model.Invitation{TeamID: uuid.New()},
		Version:     1,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepo_SetGrantPending(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	mock := newMock(t)
	mock.ExpectExec(`UPDATE notifications SET invitation_grant_pending = \$2`).
		WithArgs(id, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE notifications SET invitation_grant_pending = \$2`).
		WithArgs(id, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := newNotificationRepo(mock)
	changed, err := repo.SetGrantPending(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.SetGrantPending(ctx, id, true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepo_ListUngranted_OnlyPendingGrants(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`WHERE n.invitation_accepted = TRUE AND n.invitation_grant_pending = TRUE`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	list, err := newNotificationRepo(mock).ListUngranted(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepo(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO teams\(id, name\) VALUES\(\$1, \$2\) ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(id, "Apollo").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM teams WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	repo := newTeamRepo(mock)
	require.NoError(t, repo.Upsert(ctx, model.Team{ID: id, Name: "Apollo"}))
	require.NoError(t, repo.Delete(ctx, id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_UpdateByID(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`UPDATE users SET display_name = \$1, username = \$2 WHERE id = \$3 RETURNING id`).
		WithArgs("Ann", "ann", id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))

	err := newUserRepo(mock).UpdateByID(context.Background(), id, map[string]interface{}{
		"username":     "ann",
		"display_name": "Ann",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_FindByID_NotFound(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`FROM users u WHERE u.id`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := newUserRepo(mock).FindByID(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestMigrate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
