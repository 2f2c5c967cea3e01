package rabbitmq

const (
	NOTIFICATIONS_CREATE_QUEUE = "notifications.create"
	MEMBERSHIP_RECONCILE_QUEUE = "memberships.reconcile"
	USERS_CREATED_EXCHANGE     = "users.created"
	USERS_UPDATE_EXCHANGE      = "users.updated"
	TEAMS_CREATED_EXCHANGE     = "teams.created"
	TEAMS_DELETED_EXCHANGE     = "teams.deleted"
)
