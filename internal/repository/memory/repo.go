package memory

import "github.com/teamflow/notification-service/internal/repository"

// New returns a Repository whose Membership and Team stores share state, so
// grants only succeed in teams registered through Team.
func New() (*repository.Repository, *MembershipStore) {
	memberships := NewMembershipStore()
	return &repository.Repository{
		Notification: NewNotificationStore(),
		Membership:   memberships,
		Team:         NewTeamStore(memberships),
		User:         NewUserStore(),
	}, memberships
}
