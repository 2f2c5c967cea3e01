package postgres

import (
	"context"
	"fmt"
)

// teams and team_memberships belong to the team service; they are declared
// here so a fresh database can run the service standalone.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    username TEXT NOT NULL,
    display_name TEXT,
    avatar_url TEXT
);

CREATE TABLE IF NOT EXISTS teams (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS team_memberships (
    team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    user_id UUID NOT NULL,
    role TEXT NOT NULL DEFAULT 'member',
    joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (team_id, user_id)
);

CREATE TABLE IF NOT EXISTS notifications (
    id UUID PRIMARY KEY,
    recipient_id UUID NOT NULL,
    type TEXT NOT NULL,
    title VARCHAR(255) NOT NULL,
    message TEXT NOT NULL,
    project_id UUID,
    project_name TEXT,
    invitation_team_id UUID,
    invitation_invited_by UUID,
    invitation_accepted BOOLEAN NOT NULL DEFAULT FALSE,
    invitation_resolved_at TIMESTAMPTZ,
    invitation_grant_pending BOOLEAN NOT NULL DEFAULT FALSE,
    action_url TEXT NOT NULL DEFAULT '',
    data JSONB NOT NULL DEFAULT '{}',
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    read_at TIMESTAMPTZ,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK ((type = 'project_invitation') = (invitation_team_id IS NOT NULL)),
    CHECK (NOT invitation_accepted OR invitation_team_id IS NOT NULL)
);

ALTER TABLE notifications ADD COLUMN IF NOT EXISTS invitation_grant_pending BOOLEAN NOT NULL DEFAULT FALSE;

CREATE INDEX IF NOT EXISTS idx_notifications_grant_pending
    ON notifications(invitation_resolved_at) WHERE invitation_grant_pending = TRUE;

CREATE INDEX IF NOT EXISTS idx_notifications_recipient
    ON notifications(recipient_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_notifications_unread
    ON notifications(recipient_id) WHERE is_read = FALSE;
`

func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
