package redisrepo

import "fmt"

const (
	USER_UNREAD_COUNT            = "user:%s-notifications-unread"     // <userID>
	USER_UNREAD_COUNT_GENERATION = "user:%s-notifications-unread-gen" // <userID>
	NOTIFICATION_EVENTS          = "notifications:events"
)

func UserUnreadCountKey(userID string) string {
	return fmt.Sprintf(USER_UNREAD_COUNT, userID)
}

func UserUnreadCountGenerationKey(userID string) string {
	return fmt.Sprintf(USER_UNREAD_COUNT_GENERATION, userID)
}
